package errors

// Convenience functions for the build error taxonomy

// Configuration errors abort before any output mutation.

func ConfigurationError(field, reason string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

func MissingCompanionFlag(flag, requiredBy string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "missing required flag "+flag+" (required by "+requiredBy+")").
		WithContext("flag", flag).
		WithContext("required_by", requiredBy)
}

func ConfigLoadError(path string, cause error) *BuildError {
	return Wrap(cause, CategoryConfig, SeverityFatal, "failed to load configuration").
		WithContext("path", path)
}

// Pipeline errors

func CompileError(entry string, cause error) *BuildError {
	return Wrap(cause, CategoryCompile, SeverityFatal, "transform engine rejected input").
		WithContext("entry", entry)
}

func UnresolvedSpecifier(file, specifier string) *BuildError {
	return New(CategorySpecifier, SeverityWarning, "unresolved relative specifier").
		WithContext("file", file).
		WithContext("specifier", specifier)
}

func AssetIOError(path string, cause error) *BuildError {
	return Wrap(cause, CategoryAssetIO, SeverityFatal, "asset copy failed").
		WithContext("path", path)
}

func AuxiliaryStageError(stage string, cause error) *BuildError {
	return Wrap(cause, CategoryAuxiliary, SeverityWarning, "auxiliary stage failed").
		WithContext("stage", stage)
}

// Filesystem and runtime errors

func FilesystemError(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "output operation failed").
		WithContext("operation", operation)
}

func WatchError(message string, cause error) *BuildError {
	return Wrap(cause, CategoryWatch, SeverityFatal, message)
}

func InternalError(message string, cause error) *BuildError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
