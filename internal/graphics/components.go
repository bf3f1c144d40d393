package graphics

import "image"

// externalComponents returns the bounding boxes of the foreground components
// whose outer boundary faces the page background. Components that sit entirely
// inside a hole of another component (text inside a framed box, a dot inside a
// ring) are nested and not reported, matching external-only contour retrieval.
//
// Foreground is 8-connected and background 4-connected, so every enclosed hole
// is separated from the outer background.
func externalComponents(mask []bool, w, h int) []image.Rectangle {
	if w == 0 || h == 0 {
		return nil
	}
	outside := floodOutside(mask, w, h)
	visited := make([]bool, len(mask))

	var boxes []image.Rectangle
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !mask[i] || visited[i] {
				continue
			}
			box, external := fillComponent(mask, outside, visited, w, h, x, y)
			if external {
				boxes = append(boxes, box)
			}
		}
	}
	return boxes
}

// floodOutside marks the background pixels reachable from the image border.
func floodOutside(mask []bool, w, h int) []bool {
	outside := make([]bool, len(mask))
	var stack []image.Point

	push := func(x, y int) {
		i := y*w + x
		if mask[i] || outside[i] {
			return
		}
		outside[i] = true
		stack = append(stack, image.Point{X: x, Y: y})
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X > 0 {
			push(p.X-1, p.Y)
		}
		if p.X < w-1 {
			push(p.X+1, p.Y)
		}
		if p.Y > 0 {
			push(p.X, p.Y-1)
		}
		if p.Y < h-1 {
			push(p.X, p.Y+1)
		}
	}
	return outside
}

// fillComponent flood-fills the 8-connected component at (startX, startY) and
// returns its bounding box and whether any of its pixels touches the outer
// background or the image border.
func fillComponent(mask, outside, visited []bool, w, h, startX, startY int) (image.Rectangle, bool) {
	minX, minY, maxX, maxY := startX, startY, startX, startY
	external := false

	stack := []image.Point{{X: startX, Y: startY}}
	visited[startY*w+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p.X, p.Y

		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			external = true
		} else if outside[y*w+x-1] || outside[y*w+x+1] || outside[(y-1)*w+x] || outside[(y+1)*w+x] {
			external = true
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if mask[j] && !visited[j] {
					visited[j] = true
					stack = append(stack, image.Point{X: nx, Y: ny})
				}
			}
		}
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), external
}
