package events

import "testing"

func TestShouldWakeParsesPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{`{"type":"job.enqueued","job_id":"a"}`, true},
		{`{"type":"job.finalized","job_id":"a"}`, false},
		{`not json`, false},
		{``, false},
	}
	for _, tc := range cases {
		if got := shouldWake(tc.payload); got != tc.want {
			t.Fatalf("shouldWake(%q) = %v, want %v", tc.payload, got, tc.want)
		}
	}
}
