package stableid

// BuiltinFamily describes one engine-provided resource collection that never
// ships as an ordinary file.
type BuiltinFamily struct {
	ID      string
	FileID  int32
	Aliases []string
}

var builtinFamilies = []BuiltinFamily{
	{ID: BuiltinExtraID, FileID: -1, Aliases: []string{"unity_builtin_extra", "resources/unity_builtin_extra"}},
	{ID: BuiltinDefaultID, FileID: -2, Aliases: []string{"unity default resources", "library/unity default resources"}},
	{ID: BuiltinEditorID, FileID: -3, Aliases: []string{"unity editor resources", "library/unity editor resources"}},
}

// BuiltinFamilies returns the known families in fixed order.
func BuiltinFamilies() []BuiltinFamily {
	out := make([]BuiltinFamily, len(builtinFamilies))
	copy(out, builtinFamilies)
	return out
}

// FamilyForName matches a raw name or path against the family aliases. The
// base name is tried as well so "Library/unity default resources" and
// "unity default resources" land in the same family.
func FamilyForName(name string) (BuiltinFamily, bool) {
	n := Normalize(name)
	if n == "" {
		return BuiltinFamily{}, false
	}
	base := FileName(n)
	for _, f := range builtinFamilies {
		for _, alias := range f.Aliases {
			if n == alias || base == alias {
				return f, true
			}
		}
		if n == asciiLower(f.ID) {
			return f, true
		}
	}
	return BuiltinFamily{}, false
}

// FamilyForFileID maps the legal negative file ids to their family.
func FamilyForFileID(fileID int32) (BuiltinFamily, bool) {
	for _, f := range builtinFamilies {
		if f.FileID == fileID {
			return f, true
		}
	}
	return BuiltinFamily{}, false
}

// FamilyForID maps a sentinel collection id back to its family.
func FamilyForID(id string) (BuiltinFamily, bool) {
	for _, f := range builtinFamilies {
		if f.ID == id {
			return f, true
		}
	}
	return BuiltinFamily{}, false
}

// IsBuiltinID reports whether id is one of the built-in sentinels.
func IsBuiltinID(id string) bool {
	_, ok := FamilyForID(id)
	return ok
}
