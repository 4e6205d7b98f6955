// Package storage writes downloaded images into a destination directory.
//
// Files are named from a pattern such as "image_{index}.{ext}" and written
// through a temporary file in the same directory followed by a rename, so a
// reader never sees a partial image. The Manager indexes files left by
// earlier runs and can skip them when overwriting is disabled.
//
//	m, err := storage.NewManager(dir, cfg.Output.FileNamePattern, cfg.Output.OverwriteExisting)
//	if err != nil {
//		return err
//	}
//	name := m.FileName(1, "jpg")
//	if !m.ShouldSkip(name) {
//		_, err = m.Save(resp.Body, name)
//	}
package storage
