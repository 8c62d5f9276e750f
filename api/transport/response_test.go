package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/classroom/domain"
)

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPayload string
		wantMessage string
		wantSuccess *bool
	}{
		{name: "envelope", body: `{"success":true,"statusCode":200,"message":"ok","data":{"id":"c1"}}`, wantPayload: `{"id":"c1"}`, wantMessage: "ok", wantSuccess: ptr(true)},
		{name: "failed envelope", body: `{"success":false,"message":"nope"}`, wantMessage: "nope", wantSuccess: ptr(false)},
		{name: "envelope array data", body: `{"success":true,"data":[1,2]}`, wantPayload: `[1,2]`, wantSuccess: ptr(true)},
		{name: "raw object", body: `{"id":"c1","message":"hi"}`, wantPayload: `{"id":"c1","message":"hi"}`},
		{name: "raw array", body: `[{"id":"c1"}]`, wantPayload: `[{"id":"c1"}]`},
		{name: "non-bool success", body: `{"success":"yes","data":1}`, wantPayload: `{"success":"yes","data":1}`},
		{name: "empty", body: ``},
		{name: "malformed", body: `{"success":`, wantPayload: `{"success":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Unwrap([]byte(tt.body))
			assert.Equal(t, tt.wantPayload, string(res.Payload))
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.Equal(t, tt.wantSuccess, res.Success)
		})
	}
}

func TestDecode(t *testing.T) {
	type class struct {
		ID string `json:"_id"`
	}

	got, res, err := Decode[class]([]byte(`{"success":true,"message":"found","data":{"_id":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "found", res.Message)

	got, _, err = Decode[class]([]byte(`{"_id":"c2"}`))
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)

	list, _, err := Decode[[]class]([]byte(`{"success":true,"data":null}`))
	require.NoError(t, err)
	assert.Nil(t, list)

	_, _, err = Decode[class]([]byte(`{"success":true,"data":"oops"}`))
	assert.Error(t, err)
}

func TestResultEmpty(t *testing.T) {
	assert.True(t, Unwrap(nil).Empty())
	assert.True(t, Unwrap([]byte(`{}`)).Empty())
	assert.True(t, Unwrap([]byte(`{"success":true,"data":null}`)).Empty())
	assert.False(t, Unwrap([]byte(`{"success":true,"data":{"_id":"s1"}}`)).Empty())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "bad code", ErrorMessage([]byte(`{"success":false,"message":"bad code"}`)))
	assert.Equal(t, "plain", ErrorMessage([]byte(`{"message":"plain"}`)))
	assert.Empty(t, ErrorMessage([]byte(`<html>`)))
}

func ptr(b bool) *bool { return &b }

func TestDashboardStats(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.DashboardStats
	}{
		{name: "numbers", payload: `{"classes":3,"assignments":7,"upcoming":2}`, want: domain.DashboardStats{Classes: 3, Assignments: 7, Upcoming: 2}},
		{name: "strings and nulls", payload: `{"classes":"3","assignments":null}`, want: domain.DashboardStats{}},
		{name: "partial", payload: `{"upcoming":1}`, want: domain.DashboardStats{Upcoming: 1}},
		{name: "not an object", payload: `[1,2,3]`, want: domain.DashboardStats{}},
		{name: "empty", payload: ``, want: domain.DashboardStats{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DashboardStats(json.RawMessage(tt.payload)))
		})
	}
}
