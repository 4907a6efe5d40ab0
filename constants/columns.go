package constants

// Table file names under the csv directory.
const (
	TranscriptsTable          = "transcriptions.csv"
	ProcessedTranscriptsTable = "transcription_processed.csv"
	ScreenshotsTable          = "screenshots_processed.csv"
	CombinedTable             = "combined_analysis.csv"
	CombinedWorkbook          = "combined_analysis.xlsx"
)

// Column titles. Renaming any of these breaks resumption of existing tables.
const (
	ColFilename           = "Filename"
	ColTranscription      = "Transcription"
	ColTranscriptionError = "Transcription Error"
	ColSummary            = "Summary"
	ColTags               = "Tags"
	ColNeedsScreenshots   = "Needs Screenshots"
	ColScreenshotCount    = "Screenshot Count"
	ColExtractedText      = "Extracted Text"
	ColContentSummary     = "Content Summary"
)

// Placeholder values written in place of unavailable results.
const (
	ShortTranscriptSummary  = "Transcription too short or empty"
	ErrorSummaryPrefix      = "Error: "
	ErrorTags               = "Error generating tags"
	ErrorCustomField        = "Error generating content"
	ErrorScreenshotAnalysis = "Error analyzing screenshot"
	NoScreenshotText        = "No text extracted from screenshots"
	NoContentSentinel       = "N/A"
	FlagTrue                = "True"
	FlagFalse               = "False"
)

// CombinedInputTables lists the stage outputs in merge order; later tables win.
var CombinedInputTables = []string{
	TranscriptsTable,
	ProcessedTranscriptsTable,
	ScreenshotsTable,
}

// ReservedColumns may not be used as custom field names.
var ReservedColumns = []string{
	ColFilename, ColTranscription, ColTranscriptionError, ColSummary, ColTags,
	ColNeedsScreenshots, ColScreenshotCount, ColExtractedText, ColContentSummary,
}
