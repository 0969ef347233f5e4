package model

import (
	"time"

	"gorm.io/gorm"
)

// ContentHashCache 内容哈希缓存的数据库模型
// 以文件内容哈希（而非文件名）为键，记录已经为该内容生成过的远端资源ID，
// 相同字节内容的文件不会被重复提交到外部处理器
type ContentHashCache struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ContentHash string    `gorm:"uniqueIndex;not null;size:64" json:"content_hash"` // 内容哈希作为唯一索引
	ExternalID  string    `gorm:"not null" json:"external_id"`                      // 外部处理器生成的资源ID
	LibraryName string    `gorm:"index" json:"library_name"`                        // 首次注册的内容库
	FileName    string    `json:"file_name"`                                        // 首次提交时的原始文件名
	ByteSize    int64     `json:"byte_size"`                                        // 文件字节数
	CachedAt    time.Time `json:"cached_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ContentHashCache) TableName() string {
	return "content_hash_caches"
}

// CreateIfNotExists 创建缓存记录，如果哈希已存在则返回现有记录
// 返回 (cache, created, error) - cache: 缓存记录, created: 是否创建了新记录
func (c *ContentHashCache) CreateIfNotExists(db *gorm.DB, entry *ContentHashCache) (*ContentHashCache, bool, error) {
	// 先检查是否已存在
	var existing ContentHashCache
	err := db.Where("content_hash = ?", entry.ContentHash).First(&existing).Error

	if err == nil {
		// 同一哈希只映射到一个规范的远端资源ID
		return &existing, false, nil
	}

	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}

	if err := db.Create(entry).Error; err != nil {
		return nil, false, err
	}

	return entry, true, nil
}
