package model

// ContentSection 派生内容中的一个可检索片段
type ContentSection struct {
	Title     string  `json:"title"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"` // 片段在媒体中的起始秒数
	EndTime   float64 `json:"end_time"`
}

// StructuredContent 外部处理器对一份媒体内容的结构化处理结果
type StructuredContent struct {
	ExternalID string           `json:"external_id"`
	Title      string           `json:"title"`
	Language   string           `json:"language"`
	Duration   float64          `json:"duration"`
	Sections   []ContentSection `json:"sections"`
}
