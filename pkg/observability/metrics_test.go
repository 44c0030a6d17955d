package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
	"github.com/Sumatoshi-tech/atomtable/pkg/observability"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

// gaugeByTable extracts gauge points keyed by the "table" attribute value.
func gaugeByTable(t *testing.T, m *metricdata.Metrics) map[string]int64 {
	t.Helper()
	require.NotNil(t, m)

	gauge, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected Gauge data for %s", m.Name)

	out := make(map[string]int64, len(gauge.DataPoints))

	for _, dp := range gauge.DataPoints {
		if v, found := dp.Attributes.Value("table"); found {
			out[v.AsString()] = dp.Value
		}
	}

	return out
}

func TestRegisterTableMetrics_ReportsTables(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	words := atom.New()
	words.Intern("a")
	words.Intern("b")
	words.Intern("a")

	empty := atom.New()

	err := observability.RegisterTableMetrics(meter, map[string]observability.TableStatsProvider{
		"words": words,
		"empty": empty,
		"nil":   nil,
	})
	require.NoError(t, err)

	rm := collect(t, reader)

	atoms := gaugeByTable(t, findMetric(rm, "atomtable.table.atoms"))
	assert.Equal(t, map[string]int64{"words": 2, "empty": 0}, atoms)

	hits := gaugeByTable(t, findMetric(rm, "atomtable.table.hits"))
	assert.Equal(t, int64(1), hits["words"])

	inserts := gaugeByTable(t, findMetric(rm, "atomtable.table.inserts"))
	assert.Equal(t, int64(2), inserts["words"])

	words.Intern("c")

	rm = collect(t, reader)
	assert.Equal(t, int64(3), gaugeByTable(t, findMetric(rm, "atomtable.table.atoms"))["words"])
}

func TestRegisterTableMetrics_NoProviders(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	require.NoError(t, observability.RegisterTableMetrics(meter, nil))
	assert.Nil(t, findMetric(collect(t, reader), "atomtable.table.atoms"))
}

func TestTableRegistry_TrackAfterRegistration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	registry, err := observability.NewTableRegistry(meter)
	require.NoError(t, err)
	assert.Nil(t, findMetric(collect(t, reader), "atomtable.table.atoms"))

	first := atom.New()
	first.Intern("one")

	registry.Track("intern", first)
	registry.Track("ignored", nil)
	assert.Equal(t, 1, registry.Len())

	rm := collect(t, reader)
	assert.Equal(t, map[string]int64{"intern": 1}, gaugeByTable(t, findMetric(rm, "atomtable.table.atoms")))

	second := atom.New()
	second.InternBatch([]string{"a", "b"})

	registry.Track("intern", second)

	rm = collect(t, reader)
	assert.Equal(t, map[string]int64{"intern": 2}, gaugeByTable(t, findMetric(rm, "atomtable.table.atoms")))

	registry.Untrack("intern")
	assert.Zero(t, registry.Len())
	assert.Nil(t, findMetric(collect(t, reader), "atomtable.table.atoms"))
}

func TestInit_MetricReadersSeeTrackedTables(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()

	cfg := observability.DefaultConfig()
	cfg.MetricReaders = []sdkmetric.Reader{reader}

	providers, err := observability.InitWithWriter(cfg, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, providers.Tables)

	tbl := atom.New()
	tbl.Intern("x")
	tbl.Intern("x")

	providers.Tables.Track("intern", tbl)

	rm := collect(t, reader)
	assert.Equal(t, map[string]int64{"intern": 1}, gaugeByTable(t, findMetric(rm, "atomtable.table.atoms")))
	assert.Equal(t, map[string]int64{"intern": 1}, gaugeByTable(t, findMetric(rm, "atomtable.table.hits")))

	svc, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "atomtable", svc.AsString())

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestCommandMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	cm, err := observability.NewCommandMetrics(meter)
	require.NoError(t, err)

	ctx := context.Background()
	cm.RecordCommand(ctx, "intern", observability.StatusOK, 20*time.Millisecond)
	cm.RecordCommand(ctx, "intern", observability.StatusError, time.Millisecond)
	cm.RecordInterned(ctx, "intern", 7)

	rm := collect(t, reader)

	total, ok := findMetric(rm, "atomtable.commands.total").Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var runs int64
	for _, dp := range total.DataPoints {
		runs += dp.Value
	}

	assert.Equal(t, int64(2), runs)

	errs, ok := findMetric(rm, "atomtable.errors.total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)

	interned, ok := findMetric(rm, "atomtable.interned.total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, interned.DataPoints, 1)
	assert.Equal(t, int64(7), interned.DataPoints[0].Value)

	hist, ok := findMetric(rm, "atomtable.command.duration.seconds").Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestPrometheusHandler_ServesTableGauges(t *testing.T) {
	t.Parallel()

	handler, mp, err := observability.PrometheusHandler()
	require.NoError(t, err)

	tbl := atom.New()
	tbl.Intern("scraped")

	err = observability.RegisterTableMetrics(mp.Meter("test"), map[string]observability.TableStatsProvider{"bench": tbl})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "target_info")
	assert.Contains(t, string(body), "atomtable_table_atoms")
	assert.Contains(t, string(body), `table="bench"`)
}
