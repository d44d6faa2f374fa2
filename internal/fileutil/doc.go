// Package fileutil holds small filesystem helpers shared by the upload
// handler and the pipeline's cleanup paths.
package fileutil
