package domain

import "testing"

func TestJobProgressMilestones(t *testing.T) {
	cases := []struct {
		name      string
		status    JobStatus
		processed int
		total     int
		want      int
	}{
		{"pending", JobStatusPending, 0, 0, 0},
		{"processing", JobStatusProcessing, 0, 0, 10},
		{"chunking", JobStatusChunking, 0, 0, 30},
		{"embedding start", JobStatusEmbedding, 0, 8, 50},
		{"embedding halfway", JobStatusEmbedding, 4, 8, 75},
		{"embedding unknown total", JobStatusEmbedding, 0, 0, 50},
		{"embedding overcount clamps", JobStatusEmbedding, 9, 8, 100},
		{"completed", JobStatusCompleted, 8, 8, 100},
		{"failed freezes at zero", JobStatusFailed, 3, 8, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := JobProgress(tc.status, tc.processed, tc.total); got != tc.want {
				t.Fatalf("JobProgress(%s, %d, %d) = %d, want %d", tc.status, tc.processed, tc.total, got, tc.want)
			}
		})
	}
}

func TestJobProgressNonDecreasingAcrossLifecycle(t *testing.T) {
	const total = 7
	prev := -1
	step := func(status JobStatus, processed int) {
		t.Helper()
		got := JobProgress(status, processed, total)
		if got < prev {
			t.Fatalf("progress regressed from %d to %d at %s/%d", prev, got, status, processed)
		}
		prev = got
	}

	step(JobStatusPending, 0)
	step(JobStatusProcessing, 0)
	step(JobStatusChunking, 0)
	for processed := 0; processed <= total; processed++ {
		step(JobStatusEmbedding, processed)
	}
	step(JobStatusCompleted, total)
}

func TestStatusAtOrPast(t *testing.T) {
	if JobStatusPending.AtOrPast(JobStatusEmbedding) {
		t.Fatalf("pending must not be past embedding")
	}
	if !JobStatusEmbedding.AtOrPast(JobStatusEmbedding) {
		t.Fatalf("a milestone is at itself")
	}
	if !JobStatusCompleted.AtOrPast(JobStatusProcessing) {
		t.Fatalf("completed is past processing")
	}
	if !JobStatusFailed.AtOrPast(JobStatusEmbedding) {
		t.Fatalf("failed accepts no further progress, so it is past every milestone")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusChunking, JobStatusEmbedding} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
