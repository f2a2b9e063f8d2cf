// Package noise provides deterministic smooth noise for pacing variation.
//
// Simplex2 is two-dimensional simplex gradient noise over Ken Perlin's
// reference permutation. It is a pure function: the same coordinates always
// produce the same value, so a given script paces identically on every run.
package noise

import "math"

var (
	f2 = 0.5 * (math.Sqrt(3) - 1)
	g2 = (3 - math.Sqrt(3)) / 6
)

var grad2 = [12][2]float64{
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
	{1, 0}, {-1, 0}, {1, 0}, {-1, 0},
	{0, 1}, {0, -1}, {0, 1}, {0, -1},
}

var perm [512]int

func init() {
	for i := range perm {
		perm[i] = permutation[i&255]
	}
}

var permutation = [256]int{
	151, 160, 137, 91, 90, 15, 131, 13, 201, 95, 96, 53, 194, 233, 7, 225, 140, 36, 103, 30, 69,
	142, 8, 99, 37, 240, 21, 10, 23, 190, 6, 148, 247, 120, 234, 75, 0, 26, 197, 62, 94, 252, 219,
	203, 117, 35, 11, 32, 57, 177, 33, 88, 237, 149, 56, 87, 174, 20, 125, 136, 171, 168, 68, 175,
	74, 165, 71, 134, 139, 48, 27, 166, 77, 146, 158, 231, 83, 111, 229, 122, 60, 211, 133, 230,
	220, 105, 92, 41, 55, 46, 245, 40, 244, 102, 143, 54, 65, 25, 63, 161, 1, 216, 80, 73, 209, 76,
	132, 187, 208, 89, 18, 169, 200, 196, 135, 130, 116, 188, 159, 86, 164, 100, 109, 198, 173,
	186, 3, 64, 52, 217, 226, 250, 124, 123, 5, 202, 38, 147, 118, 126, 255, 82, 85, 212, 207, 206,
	59, 227, 47, 16, 58, 17, 182, 189, 28, 42, 223, 183, 170, 213, 119, 248, 152, 2, 44, 154, 163,
	70, 221, 153, 101, 155, 167, 43, 172, 9, 129, 22, 39, 253, 19, 98, 108, 110, 79, 113, 224, 232,
	178, 185, 112, 104, 218, 246, 97, 228, 251, 34, 242, 193, 238, 210, 144, 12, 191, 179, 162,
	241, 81, 51, 145, 235, 249, 14, 239, 107, 49, 192, 214, 31, 181, 199, 106, 157, 184, 84, 204,
	176, 115, 121, 50, 45, 127, 4, 150, 254, 138, 236, 205, 93, 222, 114, 67, 29, 24, 72, 243, 141,
	128, 195, 78, 66, 215, 61, 156, 180,
}

// Simplex2 returns 2-D simplex noise at (x, y), in [-1, 1].
func Simplex2(x, y float64) float64 {
	s := (x + y) * f2
	i := math.Floor(x + s)
	j := math.Floor(y + s)
	t := (i + j) * g2

	var xs, ys [3]float64
	xs[0] = x - (i - t)
	ys[0] = y - (j - t)

	// Which of the two triangles of the skewed cell holds the point.
	i1, j1 := 0, 1
	if xs[0] > ys[0] {
		i1, j1 = 1, 0
	}
	xs[1] = xs[0] - float64(i1) + g2
	ys[1] = ys[0] - float64(j1) + g2
	xs[2] = xs[0] + 2*g2 - 1
	ys[2] = ys[0] + 2*g2 - 1

	ii := int(i) & 255
	jj := int(j) & 255
	g := [3]int{
		perm[ii+perm[jj]] % 12,
		perm[ii+i1+perm[jj+j1]] % 12,
		perm[ii+1+perm[jj+1]] % 12,
	}

	var n float64
	for c := 0; c < 3; c++ {
		f := 0.5 - xs[c]*xs[c] - ys[c]*ys[c]
		if f > 0 {
			f *= f
			n += f * f * (grad2[g[c]][0]*xs[c] + grad2[g[c]][1]*ys[c])
		}
	}
	v := 70 * n
	return math.Max(-1, math.Min(1, v))
}

// Rescaled evaluates Simplex2 at (x*scale, y*scale) and maps the result
// from [-1, 1] onto [0, 1].
func Rescaled(x, y, scale float64) float64 {
	return (Simplex2(x*scale, y*scale) + 1) / 2
}

// At is the pacing noise for the fragment at index: Rescaled(index, 1, scale).
func At(index int, scale float64) float64 {
	return Rescaled(float64(index), 1, scale)
}
