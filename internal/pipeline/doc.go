// Package pipeline implements the four-stage training pipeline
// (generate, build, train, register) and the executor that runs it
// end to end for a single job.
//
// Stages within one job are strictly sequential; concurrency lives one
// level up, in the scheduler's per-tick fan-out. Every artifact path is
// derived from asset/job identifiers so concurrent jobs never collide
// on disk.
package pipeline
