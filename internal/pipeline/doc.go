// Package pipeline runs the control loop: measure progress from the terminal
// stage directory, generate a new batch when short of the target, push it
// through every stage, and repeat.
//
// Progress is recounted from disk on every iteration, so a controller that
// crashed or was interrupted picks up where the directories say it left off.
// A batch that fails is logged, journaled, and left out of later stages while
// the loop moves on to the next batch id. Batch ids continue from the highest
// id found in any stage directory. Only one controller may hold a workspace
// at a time (see Workspace.Lock).
package pipeline
