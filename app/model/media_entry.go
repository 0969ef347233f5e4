package model

import (
	"time"
)

// MediaEntry 内容库注册条目，记录一份派生内容在某个内容库中的登记信息
type MediaEntry struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	ExternalID   string    `json:"external_id" gorm:"not null;index;comment:外部处理器资源ID"`
	LibraryName  string    `json:"library_name" gorm:"not null;index"`
	FileName     string    `json:"file_name" gorm:"index"`
	ByteSize     int64     `json:"byte_size"`
	SourceType   string    `json:"source_type" gorm:"size:20"`
	SourceLang   string    `json:"source_lang" gorm:"size:20"`
	SectionCount int       `json:"section_count"` // 已写入搜索索引的内容片段数量
	Metadata     string    `json:"metadata" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (MediaEntry) TableName() string {
	return "media_entries"
}
