/*
go-planartrack is a CPU implementation of planar target detection and
6-DoF pose tracking for camera frames.  It detects binary square markers,
matches registered reference images, estimates target poses from camera
intrinsics and known physical sizes, and maintains per-target track state
with status change events across frames.

The root package holds the shared data model (frames, intrinsics, targets,
poses, tracking status) and the Engine that binds the pipeline stages
together.  See the detect, match, pose and tracker subpackages for the
individual stages, and example code in the example subdirectory.
*/
package planartrack
