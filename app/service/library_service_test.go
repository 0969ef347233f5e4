package service

import (
	"testing"

	"media-flow/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) *LibraryService {
	t.Helper()

	s := NewLibraryService(newTestDB(t), newTestLogger())
	s.indexRoot = t.TempDir()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNormalizeLibraryName(t *testing.T) {
	assert.Equal(t, "my-movies", NormalizeLibraryName("My Movies"))
	assert.Equal(t, "shows", NormalizeLibraryName("  Shows "))
	assert.Equal(t, "a-b-c", NormalizeLibraryName("A b C"))
}

func TestLibraryVariants(t *testing.T) {
	variants := LibraryVariants("My-Movies")

	assert.Contains(t, variants, "My-Movies")
	assert.Contains(t, variants, "my-movies")
	assert.Contains(t, variants, "My Movies")

	// 变体去重
	seen := make(map[string]int)
	for _, v := range variants {
		seen[v]++
	}
	for v, n := range seen {
		assert.Equal(t, 1, n, "变体 %q 重复", v)
	}
}

func TestRegisterAndSearch(t *testing.T) {
	lib := newTestLibrary(t)

	content := &model.StructuredContent{
		ExternalID: "ext-1",
		Sections: []model.ContentSection{
			{Title: "开场", Text: "一段关于群山与河流的描述", StartTime: 0, EndTime: 30},
			{Title: "结尾", Text: "故事在城市的夜色中结束", StartTime: 30, EndTime: 60},
		},
	}
	entry := &model.MediaEntry{FileName: "movie.mp4", ByteSize: 100}

	require.NoError(t, lib.Register("My Movies", "ext-1", content, entry))
	assert.Equal(t, 2, entry.SectionCount)
	assert.Equal(t, "my-movies", entry.LibraryName)

	hits, err := lib.Search("My Movies", "群山", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "ext-1", hits[0].ExternalID)
}

func TestRegisterIsIdempotent(t *testing.T) {
	lib := newTestLibrary(t)

	content := &model.StructuredContent{
		ExternalID: "ext-1",
		Sections:   []model.ContentSection{{Title: "片段", Text: "文本"}},
	}

	require.NoError(t, lib.Register("movies", "ext-1", content, &model.MediaEntry{FileName: "a.mp4"}))
	require.NoError(t, lib.Register("movies", "ext-1", content, &model.MediaEntry{FileName: "a.mp4"}))

	// 重复注册不会产生重复的登记行
	entries, total, err := lib.Entries("movies", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "ext-1", entries[0].ExternalID)
}

func TestResolveEntryFallsBackToFileName(t *testing.T) {
	lib := newTestLibrary(t)

	content := &model.StructuredContent{
		Sections: []model.ContentSection{{Title: "片段", Text: "文本"}},
	}
	require.NoError(t, lib.Register("movies", "ext-1", content, &model.MediaEntry{FileName: "movie.mp4"}))

	// 按远端资源ID查找
	entry, err := lib.ResolveEntry("movies", "ext-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", entry.ExternalID)

	// 按文件名回退查找
	entry, err = lib.ResolveEntry("movies", "", "movie.mp4")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", entry.ExternalID)

	// 名称变体也能命中（历史数据可能保存的是规范化前的名称）
	entry, err = lib.ResolveEntry("Movies", "ext-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ext-1", entry.ExternalID)

	// 全部未命中
	_, err = lib.ResolveEntry("movies", "no-such", "no-such.mp4")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntryRemovesRowAndIndex(t *testing.T) {
	lib := newTestLibrary(t)

	content := &model.StructuredContent{
		Sections: []model.ContentSection{{Title: "片段", Text: "独特的检索词汇"}},
	}
	require.NoError(t, lib.Register("movies", "ext-1", content, &model.MediaEntry{FileName: "a.mp4"}))

	entry, err := lib.ResolveEntry("movies", "ext-1", "")
	require.NoError(t, err)
	require.NoError(t, lib.DeleteEntry(entry))

	_, err = lib.ResolveEntry("movies", "ext-1", "")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	hits, err := lib.Search("movies", "独特的检索词汇", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRemoveFromIndexMissingDocIsNotError(t *testing.T) {
	lib := newTestLibrary(t)

	// 索引中不存在对应文档时移除不报错
	assert.NoError(t, lib.RemoveFromIndex("movies", "never-registered"))
}

func TestLibrariesListsDistinctNames(t *testing.T) {
	lib := newTestLibrary(t)

	content := &model.StructuredContent{
		Sections: []model.ContentSection{{Title: "片段", Text: "文本"}},
	}
	require.NoError(t, lib.Register("movies", "ext-1", content, &model.MediaEntry{}))
	require.NoError(t, lib.Register("shows", "ext-2", content, &model.MediaEntry{}))
	require.NoError(t, lib.Register("movies", "ext-3", content, &model.MediaEntry{}))

	names, err := lib.Libraries()
	require.NoError(t, err)
	assert.Equal(t, []string{"movies", "shows"}, names)
}
