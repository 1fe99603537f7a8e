package operations

// Step identifiers
const (
	StepIDLogin        = "login"
	StepIDOpenList     = "open_list"
	StepIDTrigger      = "trigger"
	StepIDAcquire      = "acquire"
	StepIDSelectLatest = "select_latest"
	StepIDValidate     = "validate"
	StepIDLoad         = "load"
	StepIDClean        = "clean"
	StepIDArchive      = "archive"
	StepIDPublish      = "publish"
)

// Step names
const (
	StepNameLogin        = "Sign In"
	StepNameOpenList     = "Open Goods List"
	StepNameTrigger      = "Trigger Export"
	StepNameAcquire      = "Acquire Export File"
	StepNameSelectLatest = "Select Latest File"
	StepNameValidate     = "Validate File"
	StepNameLoad         = "Load Dataset"
	StepNameClean        = "Clean Dataset"
	StepNameArchive      = "Archive Dataset"
	StepNamePublish      = "Publish To Warehouse"
)
