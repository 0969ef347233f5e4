package service

import (
	"fmt"
	"media-flow/app/logger"
	"media-flow/app/model"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"gorm.io/gorm"
)

// SearchHit 内容库搜索结果中的一条命中
type SearchHit struct {
	DocID      string  `json:"doc_id"`
	ExternalID string  `json:"external_id"`
	Score      float64 `json:"score"`
	Fragment   string  `json:"fragment"`
}

// LibraryService 目标内容库：登记行存 SQLite，内容片段写入 bleve 全文索引
// 每个内容库对应一个独立的索引目录；注册可以幂等重放，索引缺失的条目移除时不视为错误
type LibraryService struct {
	db        *gorm.DB
	log       *logger.Logger
	indexRoot string

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// NewLibraryService 创建内容库服务
func NewLibraryService(db *gorm.DB, log *logger.Logger) *LibraryService {
	return &LibraryService{
		db:        db,
		log:       log,
		indexRoot: "data/index",
		indexes:   make(map[string]bleve.Index),
	}
}

// NormalizeLibraryName 内容库名称规范化（小写、空格转连字符）
func NormalizeLibraryName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// LibraryVariants 同一逻辑内容库可能记录过的名称变体
// 历史数据中存在规范化前后两种拼写，删除时需要逐一回退查找
func LibraryVariants(name string) []string {
	seen := make(map[string]struct{})
	variants := make([]string, 0, 4)

	for _, v := range []string{
		name,
		NormalizeLibraryName(name),
		strings.ReplaceAll(name, "-", " "),
		strings.ToLower(name),
	} {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	return variants
}

// openIndex 打开（或创建）内容库对应的 bleve 索引
func (s *LibraryService) openIndex(library string) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeLibraryName(library)
	if idx, ok := s.indexes[key]; ok {
		return idx, nil
	}

	if err := os.MkdirAll(s.indexRoot, 0755); err != nil {
		return nil, fmt.Errorf("创建索引根目录失败: %w", err)
	}

	path := filepath.Join(s.indexRoot, key)
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("打开内容库索引失败: %w", err)
	}

	s.indexes[key] = idx
	return idx, nil
}

// Register 将结构化内容注册到目标内容库
// 文档ID为 externalID:片段序号，重复注册会覆盖同名文档，因此可以安全重放
func (s *LibraryService) Register(library, externalID string, content *model.StructuredContent, entry *model.MediaEntry) error {
	idx, err := s.openIndex(library)
	if err != nil {
		return err
	}

	for i, sec := range content.Sections {
		docID := fmt.Sprintf("%s:%d", externalID, i)
		doc := map[string]interface{}{
			"external_id": externalID,
			"library":     NormalizeLibraryName(library),
			"title":       sec.Title,
			"text":        sec.Text,
			"start_time":  sec.StartTime,
			"end_time":    sec.EndTime,
		}
		if err := idx.Index(docID, doc); err != nil {
			return fmt.Errorf("写入索引文档 %s 失败: %w", docID, err)
		}
	}

	entry.LibraryName = NormalizeLibraryName(library)
	entry.ExternalID = externalID
	entry.SectionCount = len(content.Sections)

	// 以 external_id + library 为键幂等登记
	var existing model.MediaEntry
	err = s.db.Where("external_id = ? AND library_name = ?", externalID, entry.LibraryName).First(&existing).Error
	if err == nil {
		entry.ID = existing.ID
	} else if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("查询登记行失败: %w", err)
	}
	if err := s.db.Save(entry).Error; err != nil {
		return fmt.Errorf("保存登记行失败: %w", err)
	}

	s.log.Infof("📚 内容已注册到库 [%s]: ExternalID=%s, 片段数=%d", entry.LibraryName, externalID, entry.SectionCount)
	return nil
}

// RemoveFromIndex 从内容库索引中移除某个远端资源的全部文档
// 索引中不存在对应文档时不视为错误
func (s *LibraryService) RemoveFromIndex(library, externalID string) error {
	idx, err := s.openIndex(library)
	if err != nil {
		return err
	}

	query := bleve.NewTermQuery(externalID)
	query.SetField("external_id")
	req := bleve.NewSearchRequest(query)
	req.Size = 1000

	res, err := idx.Search(req)
	if err != nil {
		return fmt.Errorf("检索待删除文档失败: %w", err)
	}

	for _, hit := range res.Hits {
		if err := idx.Delete(hit.ID); err != nil {
			return fmt.Errorf("删除索引文档 %s 失败: %w", hit.ID, err)
		}
	}

	s.log.Infof("🗑️ 从库 [%s] 索引移除了 %d 个文档: ExternalID=%s", library, len(res.Hits), externalID)
	return nil
}

// ResolveEntry 解析删除目标：先按远端资源ID查找，再回退按文件名查找，
// 在所有已知的内容库名称变体中依次尝试；全部未命中才返回 ErrEntryNotFound
func (s *LibraryService) ResolveEntry(library, externalID, fileName string) (*model.MediaEntry, error) {
	variants := LibraryVariants(library)

	if externalID != "" {
		var entry model.MediaEntry
		err := s.db.Where("library_name IN (?) AND external_id = ?", variants, externalID).First(&entry).Error
		if err == nil {
			return &entry, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	if fileName != "" {
		var entry model.MediaEntry
		err := s.db.Where("library_name IN (?) AND file_name = ?", variants, fileName).First(&entry).Error
		if err == nil {
			return &entry, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: library=%s, external_id=%s, file_name=%s", ErrEntryNotFound, library, externalID, fileName)
}

// DeleteEntry 删除登记条目
// 索引移除失败不阻止登记行删除：索引与登记层允许漂移，由带外流程修复
func (s *LibraryService) DeleteEntry(entry *model.MediaEntry) error {
	if err := s.RemoveFromIndex(entry.LibraryName, entry.ExternalID); err != nil {
		s.log.Warnf("索引移除失败（继续删除登记行）: Library=%s, ExternalID=%s, 错误: %v",
			entry.LibraryName, entry.ExternalID, err)
	}

	if err := s.db.Delete(&model.MediaEntry{}, entry.ID).Error; err != nil {
		return fmt.Errorf("删除登记行失败: %w", err)
	}

	s.log.Infof("🗑️ 登记条目已删除: Library=%s, ExternalID=%s, FileName=%s",
		entry.LibraryName, entry.ExternalID, entry.FileName)
	return nil
}

// Libraries 列出所有已知内容库名称
func (s *LibraryService) Libraries() ([]string, error) {
	var names []string
	err := s.db.Model(&model.MediaEntry{}).Distinct("library_name").Order("library_name").Pluck("library_name", &names).Error
	return names, err
}

// Entries 分页列出某个内容库的登记条目
func (s *LibraryService) Entries(library string, limit, offset int) ([]model.MediaEntry, int64, error) {
	variants := LibraryVariants(library)

	var entries []model.MediaEntry
	var total int64

	query := s.db.Model(&model.MediaEntry{}).Where("library_name IN (?)", variants)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Search 在内容库中全文检索
func (s *LibraryService) Search(library, queryStr string, size int) ([]SearchHit, error) {
	idx, err := s.openIndex(library)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		size = 20
	}

	query := bleve.NewMatchQuery(queryStr)
	req := bleve.NewSearchRequest(query)
	req.Size = size
	req.Fields = []string{"external_id", "text"}

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		h := SearchHit{
			DocID: hit.ID,
			Score: hit.Score,
		}
		if v, ok := hit.Fields["external_id"].(string); ok {
			h.ExternalID = v
		}
		if v, ok := hit.Fields["text"].(string); ok {
			if len(v) > 200 {
				v = v[:200]
			}
			h.Fragment = v
		}
		hits = append(hits, h)
	}

	return hits, nil
}

// Close 关闭所有打开的索引
func (s *LibraryService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("关闭索引 %s 失败: %w", name, err)
		}
		delete(s.indexes, name)
	}
	return firstErr
}
