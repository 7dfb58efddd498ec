package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fgeck/landalf/internal/models"
	"github.com/julienschmidt/httprouter"
)

// DeviceDTO is the wire representation of a device.
type DeviceDTO struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	MACAddress       string  `json:"macAddress"`
	IPAddress        *string `json:"ipAddress"`
	BroadcastAddress *string `json:"broadcastAddress"`
	IsOnline         bool    `json:"isOnline"`
}

// DeviceRequest is the body accepted by the add and set routes.
type DeviceRequest struct {
	Name             string  `json:"name"`
	MACAddress       string  `json:"macAddress"`
	IPAddress        *string `json:"ipAddress"`
	BroadcastAddress *string `json:"broadcastAddress"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ToDTO converts a device to its wire representation.
func ToDTO(d models.Device) DeviceDTO {
	dto := DeviceDTO{
		ID:         d.ID,
		Name:       d.Name,
		MACAddress: models.FormatMAC(d.MACAddress),
		IsOnline:   d.IsOnline,
	}
	if d.IPAddress != nil {
		ip := d.IPAddress.String()
		dto.IPAddress = &ip
	}
	if d.BroadcastAddress != nil {
		b := d.BroadcastAddress.String()
		dto.BroadcastAddress = &b
	}
	return dto
}

func (req DeviceRequest) input() models.DeviceInput {
	in := models.DeviceInput{
		Name:       req.Name,
		MACAddress: req.MACAddress,
	}
	if req.IPAddress != nil {
		in.IPAddress = *req.IPAddress
	}
	if req.BroadcastAddress != nil {
		in.BroadcastAddress = *req.BroadcastAddress
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeProblem(w, status, err.Error())
}

// deviceID parses the :id segment. Malformed ids cannot name a device.
func deviceID(w http.ResponseWriter, ps httprouter.Params) (int64, bool) {
	raw := ps.ByName("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusNotFound, fmt.Sprintf("PC device with ID %s not found", raw))
		return 0, false
	}
	return id, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (DeviceRequest, bool) {
	var req DeviceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	return req, true
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := s.devices.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]DeviceDTO, 0, len(list))
	for _, d := range list {
		out = append(out, ToDTO(d))
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := deviceID(w, ps)
	if !ok {
		return
	}

	d, err := s.devices.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ToDTO(*d))
}

func (s *Server) postDevice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") != "add" {
		writeProblem(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s is not allowed on %s", r.Method, r.URL.Path))
		return
	}
	s.addDevice(w, r)
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	d, err := s.devices.Create(r.Context(), req.input())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%d", BasePath, d.ID))
	writeJSON(w, http.StatusCreated, ToDTO(*d))
}

func (s *Server) postDeviceAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := deviceID(w, ps)
	if !ok {
		return
	}

	switch ps.ByName("action") {
	case "set":
		s.setDevice(w, r, id)
	case "delete":
		s.deleteDevice(w, r, id)
	case "wake":
		s.wakeDevice(w, r, id)
	case "shutdown":
		s.shutdownDevice(w, r, id)
	case "status":
		s.refreshStatus(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	}
}

func (s *Server) setDevice(w http.ResponseWriter, r *http.Request, id int64) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	if err := s.devices.Update(r.Context(), id, req.input()); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.devices.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) wakeDevice(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	if s.cfg.WakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WakeTimeout)
		defer cancel()
	}

	d, err := s.devices.Wake(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Wake-on-LAN packet sent to %s", d.Name)})
}

func (s *Server) shutdownDevice(w http.ResponseWriter, r *http.Request, id int64) {
	d, err := s.devices.Shutdown(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Shutdown command sent to %s", d.Name)})
}

func (s *Server) refreshStatus(w http.ResponseWriter, r *http.Request, id int64) {
	d, err := s.devices.RefreshStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ToDTO(*d))
}
