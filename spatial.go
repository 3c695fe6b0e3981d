package main

import "math"

// ObstacleCellSize is the side of one grid cell in arena units
const ObstacleCellSize = 4.0

// ObstacleGrid buckets an arena's obstacles for broad-phase queries. It is
// built once per match since arenas never change.
type ObstacleGrid struct {
	cols, rows int
	cells      [][]int
	obstacles  []Vec2
}

// NewObstacleGrid buckets every obstacle by the cell of its center
func NewObstacleGrid(a *Arena) *ObstacleGrid {
	g := &ObstacleGrid{
		cols:      int(math.Ceil(float64(a.Width+2)/ObstacleCellSize)) + 1,
		rows:      int(math.Ceil(float64(a.Height+2)/ObstacleCellSize)) + 1,
		obstacles: a.ObstaclePositions,
	}
	g.cells = make([][]int, g.cols*g.rows)
	for i, o := range a.ObstaclePositions {
		idx := g.cellIdx(o.X+ObstacleSize/2, o.Y+ObstacleSize/2)
		g.cells[idx] = append(g.cells[idx], i)
	}
	return g
}

func (g *ObstacleGrid) clampCell(cx, cy int) (int, int) {
	if cx < 0 {
		cx = 0
	} else if cx >= g.cols {
		cx = g.cols - 1
	}
	if cy < 0 {
		cy = 0
	} else if cy >= g.rows {
		cy = g.rows - 1
	}
	return cx, cy
}

func (g *ObstacleGrid) cellIdx(x, y float64) int {
	cx, cy := g.clampCell(int(math.Floor(x/ObstacleCellSize)), int(math.Floor(y/ObstacleCellSize)))
	return cy*g.cols + cx
}

// QueryBuf appends the indices of obstacles whose centers lie in cells
// overlapping the box around p and returns the extended slice
func (g *ObstacleGrid) QueryBuf(p Vec2, radius float64, buf []int) []int {
	minCX, minCY := g.clampCell(int(math.Floor((p.X-radius)/ObstacleCellSize)), int(math.Floor((p.Y-radius)/ObstacleCellSize)))
	maxCX, maxCY := g.clampCell(int(math.Floor((p.X+radius)/ObstacleCellSize)), int(math.Floor((p.Y+radius)/ObstacleCellSize)))
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cy*g.cols+cx]...)
		}
	}
	return buf
}

// Obstacle returns the lower corner of obstacle i
func (g *ObstacleGrid) Obstacle(i int) Vec2 {
	return g.obstacles[i]
}
