// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest loads documents into the warehouse and embeds them for
// semantic search.
//
// Text is extracted from .txt, .md, .pdf and .docx files, stored in the
// raw table, then split into overlapping word windows that are embedded
// with the warehouse embedding function. A Watcher keeps a directory in
// sync by reloading files once they stop changing.
package ingest
