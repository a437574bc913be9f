package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chatdb/chatdb/internal/storage"
)

func TestPutPlacesCollectionUnderNamespace(t *testing.T) {
	fake := &fakeBucket{}
	store, err := newStore("chatdb/prod", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/collections/orders.json", bytes.NewBufferString("[]"), 2, storage.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutName != "chatdb/prod/collections/orders.json" || fake.lastContentType != "application/json" {
		t.Fatalf("put = %q %q", fake.lastPutName, fake.lastContentType)
	}
	if info.Key != "collections/orders.json" || info.Size != 2 {
		t.Fatalf("Put() = %+v", info)
	}
}

func TestPutRejectsKeysOutsideTablesAndCollections(t *testing.T) {
	fake := &fakeBucket{}
	store, _ := newStore("", fake)
	for _, key := range []string{"../secrets.txt", "notes/readme.txt", "tables/sales.csv"} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected error", key)
		}
	}
	if fake.lastPutName != "" {
		t.Fatalf("bucket received %q", fake.lastPutName)
	}
}

func TestListStripsNamespaceAndSorts(t *testing.T) {
	fake := &fakeBucket{listed: []storage.ObjectInfo{
		{Key: "chatdb/tables/sales/b.parquet", Size: 2},
		{Key: "chatdb/tables/sales/a.parquet", Size: 1},
	}}
	store, err := newStore("/chatdb/", fake)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	infos, err := store.List(context.Background(), storage.TablesRoot+"/sales/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "chatdb/tables/sales/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(infos) != 2 || infos[0].Key != "tables/sales/a.parquet" || infos[1].Key != "tables/sales/b.parquet" {
		t.Fatalf("List() = %+v", infos)
	}
}

func TestListRejectsTraversal(t *testing.T) {
	store, _ := newStore("", &fakeBucket{})
	if _, err := store.List(context.Background(), "../other"); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}

func TestListWrapsBucketError(t *testing.T) {
	boom := errors.New("boom")
	store, _ := newStore("", &fakeBucket{listErr: boom})
	if _, err := store.List(context.Background(), ""); !errors.Is(err, boom) {
		t.Fatalf("List() error = %v", err)
	}
}

func TestGetReadsTableFile(t *testing.T) {
	fake := &fakeBucket{}
	store, _ := newStore("ns", fake)
	reader, err := store.Get(context.Background(), "tables/sales/part-1.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, _ := io.ReadAll(reader)
	_ = reader.Close()
	if string(got) != "ns/tables/sales/part-1.parquet" {
		t.Fatalf("Get() body = %q", got)
	}
}

func TestGetMapsNotFound(t *testing.T) {
	store, _ := newStore("", &fakeBucket{getErr: storage.ErrObjectNotFound})
	if _, err := store.Get(context.Background(), "collections/missing.json"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeBucket{exists: false}
	store, _ := newStore("", fake)

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.createdRegion != "us-east-1" {
		t.Fatalf("created region = %q", fake.createdRegion)
	}
}

func TestEnsureBucketSkipsExisting(t *testing.T) {
	fake := &fakeBucket{exists: true}
	store, _ := newStore("", fake)
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.createdRegion != "" {
		t.Fatal("existing bucket must not be created")
	}
}

func TestNewStoreRequiresBucket(t *testing.T) {
	if _, err := newStore("", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{raw: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
		{raw: "http://minio:9000", endpoint: "minio:9000"},
		{raw: "localhost:9000", endpoint: "localhost:9000"},
		{raw: "localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: true},
	}
	for _, tc := range cases {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if endpoint != tc.endpoint || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, endpoint, secure)
		}
	}
	if _, _, err := parseEndpoint("https://", false); err == nil {
		t.Fatal("expected missing host error")
	}
}

type fakeBucket struct {
	lastPutName     string
	lastContentType string
	lastListPrefix  string
	listed          []storage.ObjectInfo
	listErr         error
	getErr          error
	exists          bool
	createdRegion   string
}

func (f *fakeBucket) PutObject(_ context.Context, name string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastPutName = name
	f.lastContentType = contentType
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: name, Size: size}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, name string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(name)), nil
}

func (f *fakeBucket) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]storage.ObjectInfo(nil), f.listed...), nil
}

func (f *fakeBucket) Exists(context.Context) (bool, error) {
	return f.exists, nil
}

func (f *fakeBucket) Create(_ context.Context, region string) error {
	f.createdRegion = region
	return nil
}
