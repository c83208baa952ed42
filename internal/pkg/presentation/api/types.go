package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// response is the envelope that every JSON endpoint wraps its payload
// in. Pagination fields are only set by the history listing.
type response struct {
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Total      *int   `json:"total,omitempty"`
	Page       *int   `json:"page,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
	TotalPages *int   `json:"totalPages,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func newResponse(code int, message string, data any) response {
	return response{
		Success:   code < 400,
		Code:      code,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (r response) write(w http.ResponseWriter) []byte {
	b, _ := json.Marshal(r)

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(r.Code)
	w.Write(b)

	return b
}

// registrationRequest accepts userNickName as an alternative spelling
// of nickName, with nickName taking precedence.
type registrationRequest struct {
	Nickname     string `json:"nickName"`
	UserNickname string `json:"userNickName"`
	DeviceUUID   string `json:"deviceUuid"`
}

func (r registrationRequest) nickname() string {
	if r.Nickname != "" {
		return r.Nickname
	}

	return r.UserNickname
}

type locationReportRequest struct {
	Nickname     string `json:"nickName"`
	UserNickname string `json:"userNickName"`
	BeaconUUID   string `json:"beaconUuid"`
	BeaconMajor  string `json:"beaconMajor"`
	BeaconMinor  string `json:"beaconMinor"`
	Timestamp    string `json:"timeStamp"`
}

func (r locationReportRequest) nickname() string {
	if r.Nickname != "" {
		return r.Nickname
	}

	return r.UserNickname
}

type systemStatus struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	GoRoutines     int    `json:"goRoutines"`
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	NumCPU         int    `json:"numCpu"`
}
