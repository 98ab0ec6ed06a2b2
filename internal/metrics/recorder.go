package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
)

// Metric names emitted by the reconciler and session manager.
const (
	PaymentSucceeded       = "PaymentSucceeded"
	PaymentFailed          = "PaymentFailed"
	PaymentDeferred        = "PaymentDeferred"
	ReconciliationConflict = "ReconciliationConflict"
	ManualReview           = "ManualReview"
	DraftCapacityExceeded  = "DraftCapacityExceeded"
)

// Recorder counts domain events.
type Recorder interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Count(context.Context, string, map[string]string) {}

// CloudWatch publishes counts as CloudWatch custom metrics. Publishing is
// best effort: failures are logged and never returned to the caller.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	log       *zap.Logger
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, log *zap.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, log: log, nowFunc: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, dims map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(1),
		Timestamp:  sdkaws.Time(c.nowFunc()),
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		c.log.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}
