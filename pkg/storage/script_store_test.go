package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"hello.py", "backup", ".hidden", "a..b"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", ".", "..", "../etc/passwd", "dir/x.sh", `dir\x.sh`, "nul\x00"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestLocalScriptStore_ListAndRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sh"), []byte("echo b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('a')\r\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	store, err := NewLocalScriptStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.sh"}, names)

	data, err := store.Read(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, "print('a')\r\n", string(data))
}

func TestLocalScriptStore_ReadMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	store, err := NewLocalScriptStore(dir)
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "nope.sh")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Read(context.Background(), "nested")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Read(context.Background(), "../secret")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLocalScriptStore_ListRemovedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")
	store, err := NewLocalScriptStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(dir))

	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSeedExamples(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.py"), []byte("custom"), 0644))

	written, err := SeedExamples(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"backup_example.py", "system_info.sh"}, written)

	custom, err := os.ReadFile(filepath.Join(dir, "hello.py"))
	require.NoError(t, err)
	assert.Equal(t, "custom", string(custom))

	info, err := os.Stat(filepath.Join(dir, "system_info.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, "backup_example.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	again, err := SeedExamples(dir)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestExampleNames(t *testing.T) {
	assert.Equal(t, []string{"backup_example.py", "hello.py", "system_info.sh"}, ExampleNames())
}

type fakeS3 struct {
	pages   map[string]*s3.ListObjectsV2Output // keyed by continuation token
	objects map[string]string
	listErr error
	getErr  error
	inputs  []*s3.ListObjectsV2Input
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.inputs = append(f.inputs, params)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pages[aws.ToString(params.ContinuationToken)], nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func objects(keys ...string) []s3types.Object {
	out := make([]s3types.Object, len(keys))
	for i, k := range keys {
		out[i] = s3types.Object{Key: aws.String(k)}
	}
	return out
}

func TestS3ScriptStore_List(t *testing.T) {
	client := &fakeS3{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents:              objects("scripts/", "scripts/z.sh"),
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("page2"),
		},
		"page2": {
			Contents:    objects("scripts/a.py", "scripts/deep/x.sh"),
			IsTruncated: aws.Bool(false),
		},
	}}
	store := newS3ScriptStore(client, "bucket", "scripts")

	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "z.sh"}, names)

	require.Len(t, client.inputs, 2)
	assert.Equal(t, "scripts/", aws.ToString(client.inputs[0].Prefix))
	assert.Equal(t, "/", aws.ToString(client.inputs[0].Delimiter))
}

func TestS3ScriptStore_ListError(t *testing.T) {
	store := newS3ScriptStore(&fakeS3{listErr: errors.New("denied")}, "bucket", "")
	_, err := store.List(context.Background())
	assert.ErrorContains(t, err, "denied")
}

func TestS3ScriptStore_Read(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"lib/hello.py": "print('hi')"}}
	store := newS3ScriptStore(client, "bucket", "lib/")

	data, err := store.Read(context.Background(), "hello.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))

	_, err = store.Read(context.Background(), "missing.py")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Read(context.Background(), "../hello.py")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestS3ScriptStore_ReadFailure(t *testing.T) {
	store := newS3ScriptStore(&fakeS3{getErr: errors.New("timeout")}, "bucket", "")
	_, err := store.Read(context.Background(), "x.sh")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
