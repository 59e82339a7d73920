package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type stageStat struct {
	records int64
	bytes   int64
}

var (
	errorsNormalize int64
	errorsCompare   int64
	warnsNormalize  int64
	warnsCompare    int64
	rowsRead        int64
	eventsBuilt     int64
	artifactWrites  int64
	stages          sync.Map // map[string]*stageStat
)

func recordWarn(component string) {
	if strings.Contains(component, "normalizer") || strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsNormalize, 1)
	} else if strings.Contains(component, "comparator") || strings.Contains(component, "reporter") {
		atomic.AddInt64(&warnsCompare, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "normalizer") || strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsNormalize, 1)
	} else if strings.Contains(component, "comparator") || strings.Contains(component, "reporter") {
		atomic.AddInt64(&errorsCompare, 1)
	}
}

// IncrementRowsRead counts raw rows consumed from a source file.
func IncrementRowsRead(n int) {
	atomic.AddInt64(&rowsRead, int64(n))
	recordStage("reader", n)
}

// IncrementEventsBuilt counts canonical events produced by normalization.
func IncrementEventsBuilt(n int) {
	atomic.AddInt64(&eventsBuilt, int64(n))
	recordStage("normalizer", n)
}

// IncrementArtifactWrite counts artifact files written, with their size.
func IncrementArtifactWrite(sizeBytes int64) {
	atomic.AddInt64(&artifactWrites, 1)
	recordStageBytes("writer", sizeBytes)
}

// RecordStageRecords tracks per-stage record throughput for the periodic report.
func RecordStageRecords(name string, n int) {
	recordStage(name, n)
}

func recordStage(name string, n int) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.records, int64(n))
}

func recordStageBytes(name string, size int64) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.records, 1)
	atomic.AddInt64(&st.bytes, size)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of pipeline and runtime statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	stageData := map[string]map[string]int64{}
	stages.Range(func(k, v any) bool {
		name := k.(string)
		st := v.(*stageStat)
		stageData[name] = map[string]int64{
			"records": atomic.LoadInt64(&st.records),
			"bytes":   atomic.LoadInt64(&st.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_normalize": atomic.LoadInt64(&errorsNormalize),
		"errors_compare":   atomic.LoadInt64(&errorsCompare),
		"warns_normalize":  atomic.LoadInt64(&warnsNormalize),
		"warns_compare":    atomic.LoadInt64(&warnsCompare),
		"rows_read":        atomic.LoadInt64(&rowsRead),
		"events_built":     atomic.LoadInt64(&eventsBuilt),
		"artifact_writes":  atomic.LoadInt64(&artifactWrites),
		"goroutines":       runtime.NumGoroutine(),
		"stages":           stageData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("RowsRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsRead)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsBuilt"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&eventsBuilt)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArtifactWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&artifactWrites)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsNormalize"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsNormalize)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsCompare"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsCompare)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsNormalize"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsNormalize)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsCompare"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsCompare)))},
	)

	for name, stats := range stageData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("StageRecords"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["records"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("StageBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
