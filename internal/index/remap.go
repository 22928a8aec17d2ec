package index

// NameMapper translates obfuscated class and field names back to their
// original form at query time, e.g. from a ProGuard mapping file. A nil
// mapper means identity.
type NameMapper interface {
	// DeobfuscateClassName maps an obfuscated class name to its original
	// name, returning the input unchanged when it is not in the table.
	DeobfuscateClassName(className string) string

	// DeobfuscateFieldName maps an obfuscated field name, resolved in the
	// context of its declaring class, to its original name.
	DeobfuscateFieldName(className, fieldName string) string
}
