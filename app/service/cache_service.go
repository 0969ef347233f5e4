package service

import (
	"media-flow/app/logger"
	"media-flow/app/model"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// CacheStats 内容哈希缓存统计
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// CacheService 内容哈希去重缓存
// 以内容哈希为键映射到已生成的远端资源ID，字节相同的文件永远不会被重复提交；
// 持久层为 SQLite 表，前置一层内存热缓存加速查询；写入由进程级互斥锁保护
type CacheService struct {
	db  *gorm.DB
	log *logger.Logger

	hot    *gocache.Cache
	mu     sync.Mutex // 保护持久层写入
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCacheService 创建内容哈希缓存服务
func NewCacheService(db *gorm.DB, log *logger.Logger) *CacheService {
	return &CacheService{
		db:  db,
		log: log,
		hot: gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// Lookup 查询内容哈希对应的缓存条目，未命中时返回 (nil, nil)
func (s *CacheService) Lookup(contentHash string) (*model.ContentHashCache, error) {
	// 先查内存热缓存
	if v, ok := s.hot.Get(contentHash); ok {
		s.hits.Add(1)
		entry := v.(model.ContentHashCache)
		return &entry, nil
	}

	var entry model.ContentHashCache
	err := s.db.Where("content_hash = ?", contentHash).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.hits.Add(1)
	s.hot.Set(contentHash, entry, gocache.DefaultExpiration)
	return &entry, nil
}

// Put 写入缓存条目；同一哈希只保留首条记录（规范的远端资源ID）
// 返回实际生效的条目和是否新建
func (s *CacheService) Put(entry *model.ContentHashCache) (*model.ContentHashCache, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c model.ContentHashCache
	result, created, err := c.CreateIfNotExists(s.db, entry)
	if err != nil {
		return nil, false, err
	}

	s.hot.Set(result.ContentHash, *result, gocache.DefaultExpiration)

	if created {
		s.log.Infof("💾 内容哈希缓存已写入: Hash=%s, ExternalID=%s", shortHash(result.ContentHash), result.ExternalID)
	}
	return result, created, nil
}

// RemoveStaleEntries 清理超过保留期的缓存条目，这是缓存唯一的淘汰途径
func (s *CacheService) RemoveStaleEntries(maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	result := s.db.Where("cached_at < ?", cutoff).Delete(&model.ContentHashCache{})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		// 持久层删除后热缓存整体失效，避免读到已淘汰的条目
		s.hot.Flush()
		s.log.Infof("🧹 清理了 %d 个过期的内容哈希缓存条目（超过%d天）", result.RowsAffected, maxAgeDays)
	}

	return result.RowsAffected, nil
}

// Stats 缓存统计信息
func (s *CacheService) Stats() (*CacheStats, error) {
	var entries int64
	if err := s.db.Model(&model.ContentHashCache{}).Count(&entries).Error; err != nil {
		return nil, err
	}

	return &CacheStats{
		Entries: entries,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// shortHash 日志用的哈希缩写
func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
