package receipt

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medshelf/backend/internal/domain"
)

func fixture() (domain.Owner, domain.SaleTransaction, []domain.LineItem) {
	owner := domain.Owner{
		PharmacyName:  "Sunrise Pharmacy",
		Address:       "12 Market Road",
		LicenseNumber: "DL-4411",
		Phone:         "555-0101",
	}
	lines := []domain.LineItem{
		{MedicineID: 1, Name: "Paracetamol 500mg", Quantity: 3, Rate: decimal.NewNullDecimal(decimal.RequireFromString("10")), Cost: decimal.NewNullDecimal(decimal.RequireFromString("6"))},
		{MedicineID: 2, Name: "Oral rehydration salts sachet", Quantity: 2, Rate: decimal.NewNullDecimal(decimal.RequireFromString("1.255")), Cost: decimal.NewNullDecimal(decimal.RequireFromString("1"))},
	}
	sale := domain.SaleTransaction{
		ID:            "sale-0001",
		CustomerName:  "Dana",
		CustomerPhone: "555-0199",
		TotalRevenue:  decimal.RequireFromString("32.51"),
		CreatedAt:     time.Date(2025, 6, 1, 9, 30, 15, 0, time.UTC),
	}
	return owner, sale, lines
}

func TestRenderIncludesHeaderLinesAndTotal(t *testing.T) {
	owner, sale, lines := fixture()

	text := Render(owner, sale, lines)

	assert.Contains(t, text, "Sunrise Pharmacy")
	assert.Contains(t, text, "License DL-4411")
	assert.Contains(t, text, "Receipt:  sale-0001")
	assert.Contains(t, text, "Date:     2025-06-01 09:30:15")
	assert.Contains(t, text, "Customer: Dana (555-0199)")
	assert.Contains(t, text, "Paracetamol 500mg")
	assert.Contains(t, text, "30.00")
	assert.Contains(t, text, "Oral rehydration sa~")
	assert.Contains(t, text, "2.51")
	assert.Contains(t, text, "32.51")
	assert.True(t, strings.HasSuffix(text, "\n"))
	assert.False(t, strings.HasSuffix(text, "\n\n"))
	assert.NotContains(t, text, "\r")
}

func TestRenderDefaultsWalkInCustomer(t *testing.T) {
	owner, sale, lines := fixture()
	sale.CustomerName = ""
	sale.CustomerPhone = ""

	assert.Contains(t, Render(owner, sale, lines), "Customer: Walk-in\n")
}

func TestFileName(t *testing.T) {
	_, sale, _ := fixture()
	assert.Equal(t, "receipt_sale-0001_20250601_093015.txt", FileName(sale))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\n", Normalize("a\r\nb"))
	assert.Equal(t, "a\nb\n", Normalize("a\rb\n\n\n"))
}

func TestFileSinkWritesReceipt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "receipts")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Put(context.Background(), "receipt_x.txt", "line\r\n"))

	data, err := os.ReadFile(filepath.Join(dir, "receipt_x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSinkRejectsPathNames(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, sink.Put(context.Background(), "../escape.txt", "x"))
	assert.Error(t, sink.Put(context.Background(), "", "x"))
}

func TestNewFileSinkRequiresDir(t *testing.T) {
	_, err := NewFileSink("  ")
	assert.Error(t, err)
}

type fakeS3 struct {
	headErr   error
	putErr    error
	created   []string
	puts      map[string]string
	putsTypes map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	if f.puts == nil {
		f.puts = map[string]string{}
		f.putsTypes = map[string]string{}
	}
	f.puts[*in.Key] = string(body)
	f.putsTypes[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, *in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

func TestS3SinkPutUsesPrefix(t *testing.T) {
	client := &fakeS3{}
	sink := newS3Sink(client, S3Config{Bucket: "receipts", Prefix: "/owners/"})

	require.NoError(t, sink.Put(context.Background(), "receipt_a.txt", "hello"))

	assert.Equal(t, "hello\n", client.puts["owners/receipt_a.txt"])
	assert.Equal(t, "text/plain; charset=utf-8", client.putsTypes["owners/receipt_a.txt"])
}

func TestS3SinkPutWrapsError(t *testing.T) {
	boom := errors.New("boom")
	sink := newS3Sink(&fakeS3{putErr: boom}, S3Config{Bucket: "receipts"})

	err := sink.Put(context.Background(), "receipt_a.txt", "hello")
	assert.ErrorIs(t, err, boom)
}

func TestS3SinkEnsureBucketCreatesMissing(t *testing.T) {
	client := &fakeS3{headErr: &types.NotFound{}}
	sink := newS3Sink(client, S3Config{Bucket: "receipts"})

	require.NoError(t, sink.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"receipts"}, client.created)
}

func TestS3SinkEnsureBucketPropagatesOtherErrors(t *testing.T) {
	client := &fakeS3{headErr: errors.New("forbidden")}
	sink := newS3Sink(client, S3Config{Bucket: "receipts"})

	assert.Error(t, sink.EnsureBucket(context.Background()))
	assert.Empty(t, client.created)
}

func TestNewS3SinkValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3Sink(ctx, S3Config{AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)
	_, err = NewS3Sink(ctx, S3Config{Bucket: "r", SecretKey: "b"})
	assert.Error(t, err)
	_, err = NewS3Sink(ctx, S3Config{Bucket: "r", AccessKey: "a"})
	assert.Error(t, err)

	sink, err := NewS3Sink(ctx, S3Config{Bucket: "r", AccessKey: "a", SecretKey: "b", Endpoint: "localhost:9000", UsePathStyle: true})
	require.NoError(t, err)
	assert.NotNil(t, sink)
}

func TestNormalizeEndpoint(t *testing.T) {
	got, err := normalizeEndpoint("minio:9000", true)
	require.NoError(t, err)
	assert.Equal(t, "https://minio:9000", got)

	got, err = normalizeEndpoint("", false)
	require.NoError(t, err)
	assert.Empty(t, got)
}
