package fit

import (
	"fmt"
	"strings"

	"github.com/SASlabgroup/microSWIFT-programmer/pkg/utils"
)

// ZeroTolerance коэффициенты меньше по модулю в уравнение не попадают
const ZeroTolerance = 1e-6

// FormatPolynomial уравнение вида "2.0000x^3 - 0.5000x + 1.0000".
// Коэффициенты от старшей степени к свободному члену.
func FormatPolynomial(coeffs []float64) string {
	degree := len(coeffs) - 1
	var sb strings.Builder

	for i, c := range coeffs {
		if utils.Abs(c) < ZeroTolerance {
			continue
		}

		switch {
		case sb.Len() == 0 && c < 0:
			sb.WriteString("-")
		case sb.Len() > 0 && c < 0:
			sb.WriteString(" - ")
		case sb.Len() > 0:
			sb.WriteString(" + ")
		}
		sb.WriteString(fmt.Sprintf("%.4f", utils.Abs(c)))

		switch power := degree - i; power {
		case 0:
		case 1:
			sb.WriteString("x")
		default:
			sb.WriteString(fmt.Sprintf("x^%d", power))
		}
	}

	if sb.Len() == 0 {
		return "0"
	}
	return sb.String()
}

// FormatRSquared строка "R² = 0.9999"
func FormatRSquared(r2 float64) string {
	return fmt.Sprintf("R² = %.4f", r2)
}
