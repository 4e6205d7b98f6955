// Package checkpoint persists the result of a discovery run.
//
// Scrolling a long media timeline takes minutes, downloading the images it
// found takes seconds. The checkpoint stores the discovered URLs, the run
// statistics and which files were saved, so "xmediagrab download" can
// repeat the download phase without opening a browser.
//
// Checkpoints are stored in platform-specific data directories unless
// checkpoint.directory is set:
//   - Linux: ~/.local/share/xmediagrab/checkpoints/
//   - macOS: ~/Library/Application Support/xmediagrab/checkpoints/
//   - Windows: %APPDATA%/xmediagrab/checkpoints/
package checkpoint
