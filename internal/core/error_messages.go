// Package core provides the parsing and normalization pipeline for
// financial export files.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users can quote the code to support staff for faster diagnosis.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	        Patterns: "duplicate key", "unique constraint"
//
//	DB002 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB003 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB004 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock", "database is locked"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date: A transaction time could not be read
//	         Patterns: "invalid date"
//
//	VAL002 - Invalid number: An amount could not be read
//	         Patterns: "invalid number"
//
//	VAL003 - Missing field: A required field is empty
//	         Patterns: ": missing"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Patterns: "file too large"
//
//	FILE002 - Unsupported file: Only CSV and PDF exports are accepted
//	          Patterns: "unsupported file extension"
//
//	FILE003 - Encoding error: File contains characters that cannot be decoded
//	          Patterns: "encoding error"
//
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//
//	FILE006 - Header not found: The file has no recognizable header line
//	          Patterns: "header not found"
//
//	FILE007 - Unreadable PDF: The statement could not be read
//	          Patterns: "pdf"
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source mismatch: The file type does not fit the selected source
//	         Patterns: "source does not accept"
//
//	SRC002 - Unknown source: The export source could not be determined
//	         Patterns: "unknown source"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Too many imports in progress
//	         Patterns: "too many uploads"
//
//	UPL002 - Import not found: No import exists with this ID
//	         Patterns: "import not found"
//
//	UPL003 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	UPL004 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Re-import the file; existing transactions are updated in place",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Re-import the file; existing transactions are updated in place",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Export a shorter date range and import it in parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file extension",
		msg: UserMessage{
			Message: "Only CSV and PDF exports are accepted",
			Action:  "Upload the original .csv or .pdf file from the provider",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains characters that cannot be decoded",
			Action:  "Upload the file exactly as exported, or save it as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an export file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload an export that contains transactions",
			Code:    "FILE005",
		},
	},
	{
		pattern: "header not found",
		msg: UserMessage{
			Message: "The file has no recognizable header line",
			Action:  "Check that the file is an unmodified export from the selected source",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Source Errors (SRC001-SRC002)
	// =========================================================================
	{
		pattern: "source does not accept",
		msg: UserMessage{
			Message: "The file type does not fit the selected source",
			Action:  "Alipay and JD exports are CSV files; CMB statements are PDF files",
			Code:    "SRC001",
		},
	},
	{
		pattern: "unknown source",
		msg: UserMessage{
			Message: "The export source could not be determined",
			Action:  "Select the source explicitly: alipay, jd or cmb",
			Code:    "SRC002",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL003)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "A transaction time could not be read",
			Action:  "Use YYYY-MM-DD HH:MM:SS or YYYY/MM/DD HH:MM",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "An amount could not be read",
			Action:  "Amounts must be plain decimal numbers",
			Code:    "VAL002",
		},
	},
	{
		pattern: ": missing",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Every transaction needs a time, an amount and a type",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// Upload Errors (UPL001-UPL004)
	// =========================================================================
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "Check the import ID",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL004",
		},
	},

	// PDF problems are matched last so more specific patterns win.
	{
		pattern: "pdf",
		msg: UserMessage{
			Message: "The statement could not be read",
			Action:  "Upload the PDF exactly as downloaded from the bank",
			Code:    "FILE007",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when none match.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
