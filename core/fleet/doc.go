// Package fleet keeps the routes and buses the allocator can move around and
// selects which bus to reassign when a stop needs more capacity.
package fleet
