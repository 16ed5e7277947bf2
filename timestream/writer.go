package timestream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	tstypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"

	"github.com/Brightspace/test-reporting-action/projection"
)

// WriteAPI is the subset of the Timestream write client used for submission.
type WriteAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

// WriteClientFactory builds a Timestream write client signed with scoped credentials.
type WriteClientFactory func(ctx context.Context, region string, creds aws.Credentials) (WriteAPI, error)

// Writer submits write batches to one Timestream database.
// A client is built lazily per credential set and reused across batches.
type Writer struct {
	region    string
	database  string
	newClient WriteClientFactory

	mu       sync.Mutex
	client   WriteAPI
	clientID string
}

// NewWriter creates a Writer backed by the AWS SDK.
func NewWriter(region, database string) *Writer {
	return NewWriterWithFactory(region, database, newWriteClient)
}

// NewWriterWithFactory creates a Writer with a custom client factory.
func NewWriterWithFactory(region, database string, factory WriteClientFactory) *Writer {
	return &Writer{region: region, database: database, newClient: factory}
}

// Database returns the destination database name.
func (w *Writer) Database() string {
	return w.database
}

// WriteBatch performs a single WriteRecords call for batch.
// Failures are returned as *WriteError.
func (w *Writer) WriteBatch(ctx context.Context, creds aws.Credentials, batch projection.WriteBatch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	if len(batch.Records) > projection.MaxBatchRecords {
		return &WriteError{
			Kind:  ErrInvalidRequest,
			Table: batch.Table,
			Err:   fmt.Errorf("batch has %d records, limit is %d", len(batch.Records), projection.MaxBatchRecords),
		}
	}

	client, err := w.resolveClient(ctx, creds)
	if err != nil {
		return &WriteError{Table: batch.Table, Err: err}
	}

	_, err = client.WriteRecords(ctx, BuildWriteRecordsInput(w.database, batch))
	return wrapWriteError(batch.Table, err)
}

func (w *Writer) resolveClient(ctx context.Context, creds aws.Credentials) (WriteAPI, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil && w.clientID == creds.AccessKeyID {
		return w.client, nil
	}
	if creds.AccessKeyID == "" {
		return nil, errors.New("scoped credentials are empty")
	}

	client, err := w.newClient(ctx, w.region, creds)
	if err != nil {
		return nil, err
	}
	w.client = client
	w.clientID = creds.AccessKeyID
	return client, nil
}

// BuildWriteRecordsInput converts a projected batch into the SDK request shape.
func BuildWriteRecordsInput(database string, batch projection.WriteBatch) *timestreamwrite.WriteRecordsInput {
	records := make([]tstypes.Record, 0, len(batch.Records))
	for _, r := range batch.Records {
		records = append(records, tstypes.Record{
			Time:          aws.String(r.Time),
			Dimensions:    dimensions(r.Dimensions),
			MeasureValues: measureValues(r.MeasureValues),
		})
	}

	return &timestreamwrite.WriteRecordsInput{
		DatabaseName: aws.String(database),
		TableName:    aws.String(batch.Table),
		Records:      records,
		CommonAttributes: &tstypes.Record{
			Dimensions:       dimensions(batch.Common.Dimensions),
			MeasureName:      aws.String(batch.Common.MeasureName),
			MeasureValueType: tstypes.MeasureValueType(batch.Common.MeasureValueType),
			TimeUnit:         tstypes.TimeUnit(batch.Common.TimeUnit),
			Version:          aws.Int64(batch.Common.Version),
		},
	}
}

func dimensions(dims []projection.Dimension) []tstypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]tstypes.Dimension, 0, len(dims))
	for _, d := range dims {
		out = append(out, tstypes.Dimension{
			Name:               aws.String(d.Name),
			Value:              aws.String(d.Value),
			DimensionValueType: tstypes.DimensionValueTypeVarchar,
		})
	}
	return out
}

func measureValues(values []projection.MeasureValue) []tstypes.MeasureValue {
	out := make([]tstypes.MeasureValue, 0, len(values))
	for _, v := range values {
		out = append(out, tstypes.MeasureValue{
			Name:  aws.String(v.Name),
			Value: aws.String(v.Value),
			Type:  tstypes.MeasureValueType(v.Type),
		})
	}
	return out
}

func newWriteClient(ctx context.Context, region string, creds aws.Credentials) (WriteAPI, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return timestreamwrite.NewFromConfig(awsConfig), nil
}
