// Package testsupport builds throwaway configs, stub tools, and fixture files
// for package tests.
package testsupport
