package storage

import (
	"testing"
)

func TestFileStorageRoundTrip(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	content := []byte("<html>export</html>")
	if err := fs.SaveTextFile("exports", "video.html", content); err != nil {
		t.Fatalf("保存文件失败: %v", err)
	}

	if !fs.FileExists("exports", "video.html") {
		t.Error("保存后文件应存在")
	}

	loaded, err := fs.LoadTextFile("exports", "video.html")
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	if string(loaded) != string(content) {
		t.Errorf("读取内容不一致: %q", loaded)
	}

	// 覆盖写入后读取应拿到新内容
	updated := []byte("<html>updated</html>")
	if err := fs.SaveTextFile("exports", "video.html", updated); err != nil {
		t.Fatalf("覆盖写入失败: %v", err)
	}
	loaded, err = fs.LoadTextFile("exports", "video.html")
	if err != nil {
		t.Fatalf("二次读取失败: %v", err)
	}
	if string(loaded) != string(updated) {
		t.Errorf("缓存未随写入更新: %q", loaded)
	}
}

func TestFileStorageRejectsBadFilename(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	for _, name := range []string{"../escape.html", "a/b.html", "a\\b.html"} {
		if err := fs.SaveTextFile("exports", name, []byte("x")); err == nil {
			t.Errorf("非法文件名 %q 应被拒绝", name)
		}
	}
}

func TestFileStorageListAndDelete(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	if err := fs.SaveTextFile("exports", "a.html", []byte("a")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if err := fs.SaveTextFile("exports", "b.html", []byte("b")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	names, err := fs.ListFiles("exports")
	if err != nil {
		t.Fatalf("列出文件失败: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("期望2个文件, 实际 %d", len(names))
	}

	if err := fs.DeleteFile("exports", "a.html"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if fs.FileExists("exports", "a.html") {
		t.Error("删除后文件不应存在")
	}
	if _, err := fs.LoadTextFile("exports", "a.html"); err == nil {
		t.Error("删除后读取应失败")
	}

	// 不存在的目录返回空列表
	names, err = fs.ListFiles("missing")
	if err != nil || names != nil {
		t.Errorf("不存在的目录应返回空列表, 实际 names=%v err=%v", names, err)
	}
}
