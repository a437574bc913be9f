package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	TablesRoot      = "tables"
	CollectionsRoot = "collections"

	parquetExt    = ".parquet"
	collectionExt = ".json"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// TablePrefix is the directory holding every parquet file of a table.
func TablePrefix(tableName string) (string, error) {
	if err := ValidateName(tableName, "table name"); err != nil {
		return "", err
	}
	return TablesRoot + "/" + tableName + "/", nil
}

func BuildTableFilePath(tableName, fileName string) (string, error) {
	prefix, err := TablePrefix(tableName)
	if err != nil {
		return "", err
	}
	if err := ValidateName(fileName, "file name"); err != nil {
		return "", err
	}
	if !strings.HasSuffix(fileName, parquetExt) {
		fileName += parquetExt
	}
	return prefix + fileName, nil
}

func BuildCollectionPath(collection string) (string, error) {
	if err := ValidateName(collection, "collection name"); err != nil {
		return "", err
	}
	return path.Join(CollectionsRoot, collection+collectionExt), nil
}

// TableFromKey extracts the table name from a key under TablesRoot. Only
// parquet files count.
func TableFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, TablesRoot+"/")
	if !ok || !strings.HasSuffix(rest, parquetExt) {
		return "", false
	}
	table, _, found := strings.Cut(rest, "/")
	if !found || ValidateName(table, "table name") != nil {
		return "", false
	}
	return table, true
}

func CollectionFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, CollectionsRoot+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, collectionExt)
	if !ok || ValidateName(name, "collection name") != nil {
		return "", false
	}
	return name, true
}

func ValidateName(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// ObjectKey cleans key and checks that it names a table parquet file or a
// collection document.
func ObjectKey(key string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if _, ok := TableFromKey(cleaned); ok {
		return cleaned, nil
	}
	if _, ok := CollectionFromKey(cleaned); ok {
		return cleaned, nil
	}
	return "", fmt.Errorf("invalid object key: %q", key)
}
