package assets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
		f.types = make(map[string]string)
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mirror_UploadsAll(t *testing.T) {
	m, err := Publish(Config{Stamp: "m1", Prefix: "/dnext", TempDir: t.TempDir(), Logger: quietLogger(), source: testSource()})
	if err != nil {
		t.Fatal(err)
	}
	client := &fakeS3{}
	mirror := NewS3Mirror(client, "bucket", "engine/").WithLogger(quietLogger())

	if err := mirror.Mirror(context.Background(), m); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	want := map[string]string{
		"bucket/engine/engine-m1.js":      "application/javascript; charset=utf-8",
		"bucket/engine/engine-m1.min.css": "text/css; charset=utf-8",
		"bucket/engine/engine-m1.js.map":  "application/json; charset=utf-8",
	}
	if len(client.objects) != len(want) {
		t.Fatalf("uploaded %d objects, want %d", len(client.objects), len(want))
	}
	for key, ct := range want {
		if _, ok := client.objects[key]; !ok {
			t.Errorf("missing object %s", key)
		}
		if client.types[key] != ct {
			t.Errorf("%s content type = %q, want %q", key, client.types[key], ct)
		}
	}
	if string(client.objects["bucket/engine/engine-m1.min.css"]) != "body{}" {
		t.Errorf("stylesheet body = %q", client.objects["bucket/engine/engine-m1.min.css"])
	}
}

func TestS3Mirror_Error(t *testing.T) {
	m, err := Publish(Config{Stamp: "m2", TempDir: t.TempDir(), Logger: quietLogger(), source: testSource()})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("access denied")
	mirror := NewS3Mirror(&fakeS3{fail: boom}, "bucket", "")
	if err := mirror.Mirror(context.Background(), m); !errors.Is(err, boom) {
		t.Errorf("Mirror err = %v, want wrapped %v", err, boom)
	}
}

func TestNewS3Client_SharedProfile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config")
	credsFile := filepath.Join(dir, "credentials")
	if err := os.WriteFile(configFile, []byte("[profile mirror]\nregion = us-west-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(credsFile, []byte("[mirror]\naws_access_key_id = AKIDMIRROR\naws_secret_access_key = secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AWS_CONFIG_FILE", configFile)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", credsFile)
	t.Setenv("AWS_PROFILE", "mirror")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	ctx := context.Background()
	client, err := NewS3Client(ctx, "eu-central-1")
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}

	opts := client.Options()
	if opts.Region != "eu-central-1" {
		t.Errorf("Region = %q, want eu-central-1", opts.Region)
	}
	creds, err := opts.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDMIRROR" {
		t.Errorf("AccessKeyID = %q, want the shared profile key", creds.AccessKeyID)
	}
}
