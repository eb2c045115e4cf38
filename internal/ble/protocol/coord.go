package protocol

import "strconv"

// CoordinateDecimals is the fixed number of fractional digits per coordinate.
const CoordinateDecimals = 6

// EncodeCoordinate formats a fix as "<lat>,<lon>" with six fractional digits
// each and no terminator. strconv rounds the exact binary value, so the
// output matches printf-style %.6f.
func EncodeCoordinate(lat, lon float64) []byte {
	buf := make([]byte, 0, 24)
	buf = strconv.AppendFloat(buf, lat, 'f', CoordinateDecimals, 64)
	buf = append(buf, ',')
	return strconv.AppendFloat(buf, lon, 'f', CoordinateDecimals, 64)
}
