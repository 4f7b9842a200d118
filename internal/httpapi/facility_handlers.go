package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"firewatch.org/internal/facility"
)

const (
	buildingNotFound = "Building not found"
	sensorNotFound   = "Sensor not found"
	incidentNotFound = "Incident not found"
)

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Buildings -----------------------------------------------------------------

func (a *API) listBuildings(w http.ResponseWriter, r *http.Request) {
	items, err := a.facility.ListBuildings(r.Context())
	if err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *API) getBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := a.facility.GetBuilding(r.Context(), id)
	if err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) createBuilding(w http.ResponseWriter, r *http.Request) {
	who, _ := actor(r)
	var in facility.BuildingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, err := a.facility.CreateBuilding(r.Context(), who, in)
	if err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) updateBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	var in facility.BuildingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	b, err := a.facility.UpdateBuilding(r.Context(), who, id, in)
	if err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) deleteBuilding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	if err := a.facility.DeleteBuilding(r.Context(), who, id); err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sensors -------------------------------------------------------------------

func (a *API) listSensors(w http.ResponseWriter, r *http.Request) {
	buildingID, err := queryInt(r, "building_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "building_id must be an integer")
		return
	}
	items, err := a.facility.ListSensors(r.Context(), facility.SensorFilter{BuildingID: buildingID})
	if err != nil {
		handleFacilityError(w, r, err, sensorNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *API) getSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := a.facility.GetSensor(r.Context(), id)
	if err != nil {
		handleFacilityError(w, r, err, sensorNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) createSensor(w http.ResponseWriter, r *http.Request) {
	who, _ := actor(r)
	var in facility.SensorInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.facility.CreateSensor(r.Context(), who, in)
	if err != nil {
		handleFacilityError(w, r, err, buildingNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) updateSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	var in facility.SensorInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s, err := a.facility.UpdateSensor(r.Context(), who, id, in)
	if err != nil {
		handleFacilityError(w, r, err, sensorNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) deleteSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	if err := a.facility.DeleteSensor(r.Context(), who, id); err != nil {
		handleFacilityError(w, r, err, sensorNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Incidents -----------------------------------------------------------------

func (a *API) listIncidents(w http.ResponseWriter, r *http.Request) {
	sensorID, err := queryInt(r, "sensor_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "sensor_id must be an integer")
		return
	}
	resolved, err := queryBool(r, "resolved")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "resolved must be a boolean")
		return
	}
	items, err := a.facility.ListIncidents(r.Context(), facility.IncidentFilter{SensorID: sensorID, Resolved: resolved})
	if err != nil {
		handleFacilityError(w, r, err, incidentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (a *API) getIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inc, err := a.facility.GetIncident(r.Context(), id)
	if err != nil {
		handleFacilityError(w, r, err, incidentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) reportIncident(w http.ResponseWriter, r *http.Request) {
	var in facility.IncidentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := a.facility.ReportIncident(r.Context(), in)
	if err != nil {
		handleFacilityError(w, r, err, sensorNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) patchIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	var p facility.IncidentPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := a.facility.PatchIncident(r.Context(), who, id, p)
	if err != nil {
		handleFacilityError(w, r, err, incidentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) deleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	who, _ := actor(r)
	if err := a.facility.DeleteIncident(r.Context(), who, id); err != nil {
		handleFacilityError(w, r, err, incidentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
