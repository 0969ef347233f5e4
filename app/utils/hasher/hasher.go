package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize 流式读取的分块大小，内存占用与文件大小无关
const ChunkSize = 1024 * 1024 * 2 // 2MB

// HashFile 计算文件内容的SHA-256哈希（基于字节内容而非文件名）
// 分块流式读取，不会把整个媒体文件读入内存
func HashFile(ctx context.Context, filePath string) (string, int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	return HashReader(ctx, file)
}

// HashReader 对任意数据流计算SHA-256哈希，返回哈希值和读取的字节数
// 每读完一个分块检查一次取消信号
func HashReader(ctx context.Context, r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return "", total, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", total, fmt.Errorf("写入哈希计算器失败: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", total, fmt.Errorf("读取数据失败: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), total, nil
}
