// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package agentapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/statusservice"
)

// benchmarkRequest is the submit_benchmark body.
type benchmarkRequest struct {
	HashcatBenchmarks []benchmarkEntry `json:"hashcat_benchmarks"`
}

type benchmarkEntry struct {
	Device    int     `json:"device"`
	HashSpeed float64 `json:"hash_speed"`
	HashType  int     `json:"hash_type"`
	Runtime   int     `json:"runtime"`
}

// errorRequest is the submit_error body.
type errorRequest struct {
	Message  string                 `json:"message"`
	Severity string                 `json:"severity"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	TaskID   *string                `json:"task_id,omitempty"`
}

// crackRequest is the submit_crack body.
type crackRequest struct {
	Hash      string `json:"hash"`
	PlainText string `json:"plain_text"`
	Timestamp int64  `json:"timestamp"`
}

// statusRequest accepts both wire shapes the open question names: the
// snapshot fields at the top level (the documented shape), or nested under
// the legacy `_json` wrapper key some older agents send.
// decodeStatus centralizes the dual-shape parsing so every call site sees
// one normalized Snapshot regardless of which shape arrived.
type statusRequest struct {
	Session       string               `json:"session"`
	TimeStart     int64                `json:"time_start"`
	Progress      [2]int64             `json:"progress"`
	RestorePoint  int64                `json:"restore_point"`
	RejectedCount int64                `json:"rejected_count"`
	Devices       []d.DeviceStatus     `json:"devices"`
	HashcatGuess  *guessWire           `json:"hashcat_guess"`

	// Original, legacy wrapper shape: the whole snapshot nested one level
	// under "_json".
	JSON *statusInner `json:"_json"`
}

type statusInner struct {
	Session       string           `json:"session"`
	TimeStart     int64            `json:"time_start"`
	Progress      [2]int64         `json:"progress"`
	RestorePoint  int64            `json:"restore_point"`
	RejectedCount int64            `json:"rejected_count"`
	Devices       []d.DeviceStatus `json:"devices"`
	HashcatGuess  *guessWire       `json:"hashcat_guess"`
}

type guessWire struct {
	GuessBase       string  `json:"guess_base"`
	GuessBaseCount  int64   `json:"guess_base_count"`
	GuessBaseOffset int64   `json:"guess_base_offset"`
	GuessModPercent float64 `json:"guess_mod_percent"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.Validation("malformed request body: " + err.Error())
	}
	return nil
}

// decodeStatus normalizes both wire shapes of the status snapshot into one
// statusservice.Snapshot, per the centralized-parsing decision for OQ1.
func decodeStatus(r *http.Request) (statusservice.Snapshot, error) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		return statusservice.Snapshot{}, err
	}

	session, timeStart, progress, restorePoint, rejected, devices, guess := req.Session, req.TimeStart, req.Progress, req.RestorePoint, req.RejectedCount, req.Devices, req.HashcatGuess
	if req.JSON != nil {
		session, timeStart, progress = req.JSON.Session, req.JSON.TimeStart, req.JSON.Progress
		restorePoint, rejected, devices, guess = req.JSON.RestorePoint, req.JSON.RejectedCount, req.JSON.Devices, req.JSON.HashcatGuess
	}

	snap := statusservice.Snapshot{
		Session: session, TimeStart: time.Unix(timeStart, 0),
		Progress: progress, RestorePoint: restorePoint, RejectedCount: rejected, Devices: devices,
	}
	if guess != nil {
		snap.Guess = &d.HashcatGuess{
			GuessBase: guess.GuessBase, GuessBaseCount: guess.GuessBaseCount,
			GuessBaseOffset: guess.GuessBaseOffset, GuessModPercent: guess.GuessModPercent,
		}
	}
	return snap, nil
}
