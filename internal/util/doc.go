// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the small file and string helpers shared by the journal,
// the pipeline and both front-ends.
//
// File Operations:
//   - AtomicWriteFile: crash-safe whole-file write (saved transcripts)
//   - AppendFile: open, append, sync, close (journal lines)
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth, StringWidth: terminal column aware truncation
package util
