package hasher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// 文件名不同但字节内容相同，哈希必须一致
	path1 := filepath.Join(dir, "a.mp4")
	path2 := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(path1, []byte("相同的内容"), 0644))
	require.NoError(t, os.WriteFile(path2, []byte("相同的内容"), 0644))

	hash1, size1, err := HashFile(ctx, path1)
	require.NoError(t, err)
	hash2, size2, err := HashFile(ctx, path2)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.Equal(t, size1, size2)
	assert.Len(t, hash1, 64) // SHA-256 十六进制
}

func TestHashFileOneByteDifference(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	path1 := filepath.Join(dir, "a.bin")
	path2 := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(path1, []byte("content-A"), 0644))
	require.NoError(t, os.WriteFile(path2, []byte("content-B"), 0644))

	hash1, _, err := HashFile(ctx, path1)
	require.NoError(t, err)
	hash2, _, err := HashFile(ctx, path2)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestHashFileMissing(t *testing.T) {
	_, _, err := HashFile(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestHashReaderLargeInput(t *testing.T) {
	// 跨越多个分块的输入
	data := strings.Repeat("x", ChunkSize*2+123)

	hash, size, err := HashReader(context.Background(), bytes.NewReader([]byte(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Len(t, hash, 64)

	// 同样的输入再算一次，结果一致
	hash2, _, err := HashReader(context.Background(), bytes.NewReader([]byte(data)))
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
}

func TestHashReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := HashReader(ctx, bytes.NewReader([]byte("data")))
	assert.ErrorIs(t, err, context.Canceled)
}
