package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mcuctrl/internal/mcu"
)

// apiSource tags register writes made through the API.
const apiSource = "api"

// commandInfo describes one registry entry.
type commandInfo struct {
	Name   string `json:"name"`
	Opcode string `json:"opcode"`
}

// registerValue is the response for register reads and writes.
type registerValue struct {
	Register string `json:"register"`
	Value    byte   `json:"value"`
	Hex      string `json:"hex"`
}

// writeRegisterRequest is the body of PUT /registers/{name}. Value is a
// number or a decimal/0x-hex string.
type writeRegisterRequest struct {
	Value json.RawMessage `json:"value"`
}

func newRegisterValue(name string, v byte) registerValue {
	return registerValue{Register: name, Value: v, Hex: fmt.Sprintf("0x%02x", v)}
}

// handleListRegisters returns the read and write namespaces.
func (s *Server) handleListRegisters(w http.ResponseWriter, _ *http.Request) {
	list := func(access mcu.Access) []commandInfo {
		cmds := mcu.Commands(access)
		out := make([]commandInfo, 0, len(cmds))
		for _, c := range cmds {
			out = append(out, commandInfo{Name: c.Name, Opcode: fmt.Sprintf("0x%02x", byte(c.Opcode))})
		}
		return out
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"read":  list(mcu.Read),
		"write": list(mcu.Write),
	})
}

// handleReadRegister reads one register from the device.
func (s *Server) handleReadRegister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := s.client.ReadRegister(r.Context(), name)
	if err != nil {
		writeMCUError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRegisterValue(name, v))
}

// handleWriteRegister writes one register; the MCU client runs its PWM
// self-check afterwards.
func (s *Server) handleWriteRegister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req writeRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}

	var raw string
	if err := json.Unmarshal(req.Value, &raw); err != nil {
		raw = string(req.Value)
	}
	v, err := mcu.ParseValue(raw)
	if err != nil {
		writeMCUError(w, err)
		return
	}

	ctx := mcu.WithSource(r.Context(), apiSource)
	if err := s.client.WriteRegister(ctx, name, v); err != nil {
		writeMCUError(w, err)
		return
	}

	s.logger.Info("register written via API",
		"register", name,
		"value", mcu.FormatValue(v),
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusOK, newRegisterValue(name, v))
}
