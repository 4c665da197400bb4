package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()

	cases := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{"batch start ok", Event{BatchID: id, TS: now, Stage: StageBatchStart}, ""},
		{"missing batch id", Event{TS: now, Stage: StageBatchStart}, "batch id"},
		{"missing timestamp", Event{BatchID: id, Stage: StageBatchDone}, "timestamp"},
		{"unknown stage", Event{BatchID: id, TS: now, Stage: "NOPE"}, "unknown stage"},
		{
			"fetch done ok",
			Event{BatchID: id, TS: now, Stage: StageFetchDone, Site: "example.com", Strategy: "reader", StatusClass: Status2xx},
			"",
		},
		{
			"fetch done without strategy",
			Event{BatchID: id, TS: now, Stage: StageFetchDone, Site: "example.com", StatusClass: Status2xx},
			"strategy",
		},
		{
			"fetch done without status class",
			Event{BatchID: id, TS: now, Stage: StageFetchDone, Site: "example.com", Strategy: "reader"},
			"status class",
		},
		{
			"extract done requires site",
			Event{BatchID: id, TS: now, Stage: StageExtractDone},
			"site",
		},
		{
			"negative duration",
			Event{BatchID: id, TS: now, Stage: StageBatchDone, Dur: -time.Second},
			"duration",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestParseBatchID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, ok := ParseBatchID(id.String())
	require.True(t, ok)
	require.Equal(t, UUIDToBytes(id), got)

	_, ok = ParseBatchID("not-a-uuid")
	require.False(t, ok)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(304))
	require.Equal(t, Status4xx, ClassifyStatus(429))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(0))
}

func TestSiteOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "news.example.com", SiteOf("https://News.Example.com/story/1?a=b"))
	require.Equal(t, "unknown", SiteOf(""))
	require.Equal(t, "unknown", SiteOf("::not a url::"))
}
