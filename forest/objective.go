package forest

import (
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// TransformKind selects the function applied to raw scores.
type TransformKind uint8

const (
	TransformIdentity TransformKind = iota
	TransformSigmoid
	TransformSoftmax
	TransformMulticlassOVA
	TransformExp
	TransformCrossEntropy
	TransformCrossEntropyLambda
	TransformSquare
)

var transformNames = [...]string{
	TransformIdentity:           "identity",
	TransformSigmoid:            "sigmoid",
	TransformSoftmax:            "softmax",
	TransformMulticlassOVA:      "multiclass-ova",
	TransformExp:                "exp",
	TransformCrossEntropy:       "cross-entropy",
	TransformCrossEntropyLambda: "cross-entropy-lambda",
	TransformSquare:             "square",
}

func (k TransformKind) String() string {
	if int(k) < len(transformNames) {
		return transformNames[k]
	}
	return "TransformKind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is a known transform.
func (k TransformKind) Valid() bool { return int(k) < len(transformNames) }

// HasSlope reports whether the transform uses Objective.Sigmoid.
func (k TransformKind) HasSlope() bool {
	return k == TransformSigmoid || k == TransformMulticlassOVA
}

// Objective is the parsed objective line of a model file.
type Objective struct {
	// Name is the objective as written, e.g. "binary sigmoid:1".
	Name      string
	Kind      string
	Transform TransformKind
	// Sigmoid is the slope of sigmoid based transforms.
	Sigmoid  float64
	NumClass int
}

var identityObjectives = map[string]bool{
	"regression":    true,
	"regression_l1": true,
	"huber":         true,
	"fair":          true,
	"quantile":      true,
	"mape":          true,
	"lambdarank":    true,
	"rank_xendcg":   true,
	"custom":        true,
}

// ParseObjective decodes a LightGBM objective string. An empty string
// yields the identity transform.
func ParseObjective(s string) (Objective, error) {
	fields := strings.Fields(s)
	obj := Objective{Name: s, Transform: TransformIdentity, Sigmoid: 1, NumClass: 1}
	if len(fields) == 0 {
		obj.Kind = "custom"
		return obj, nil
	}
	obj.Kind = fields[0]

	params := map[string]string{}
	sqrt := false
	for _, f := range fields[1:] {
		if f == "sqrt" {
			sqrt = true
			continue
		}
		key, value, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		params[key] = value
	}
	if v, ok := params["sigmoid"]; ok {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil || k <= 0 {
			return obj, errors.NewMalformedModelErrorf(-1, -1, -1, "objective", "invalid sigmoid parameter %q", v)
		}
		obj.Sigmoid = k
	}
	if v, ok := params["num_class"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return obj, errors.NewMalformedModelErrorf(-1, -1, -1, "objective", "invalid num_class parameter %q", v)
		}
		obj.NumClass = n
	}

	switch {
	case obj.Kind == "binary":
		obj.Transform = TransformSigmoid
	case obj.Kind == "multiclass" || obj.Kind == "softmax":
		obj.Transform = TransformSoftmax
	case obj.Kind == "multiclassova" || obj.Kind == "multiclass_ova" || obj.Kind == "ova" || obj.Kind == "ovr":
		obj.Transform = TransformMulticlassOVA
	case obj.Kind == "poisson" || obj.Kind == "gamma" || obj.Kind == "tweedie":
		obj.Transform = TransformExp
	case obj.Kind == "cross_entropy" || obj.Kind == "xentropy":
		obj.Transform = TransformCrossEntropy
	case obj.Kind == "cross_entropy_lambda" || obj.Kind == "xentlambda":
		obj.Transform = TransformCrossEntropyLambda
	case identityObjectives[obj.Kind]:
		if sqrt {
			obj.Transform = TransformSquare
		}
	default:
		return obj, errors.NewMalformedModelErrorf(-1, -1, -1, "objective", "unsupported objective %q", obj.Kind)
	}
	return obj, nil
}

// Apply transforms raw scores in place.
func (o Objective) Apply(scores []float64) {
	switch o.Transform {
	case TransformIdentity:
	case TransformSigmoid, TransformMulticlassOVA:
		for i, x := range scores {
			scores[i] = 1.0 / (1.0 + math.Exp(-o.Sigmoid*x))
		}
	case TransformSoftmax:
		softmax(scores)
	case TransformExp:
		for i, x := range scores {
			scores[i] = math.Exp(x)
		}
	case TransformCrossEntropy:
		for i, x := range scores {
			scores[i] = 1.0 / (1.0 + math.Exp(-x))
		}
	case TransformCrossEntropyLambda:
		for i, x := range scores {
			scores[i] = math.Log1p(math.Exp(x))
		}
	case TransformSquare:
		for i, x := range scores {
			scores[i] = math.Copysign(x*x, x)
		}
	default:
		panic("forest: unhandled transform " + o.Transform.String())
	}
}

func softmax(scores []float64) {
	if len(scores) == 0 {
		return
	}
	maxScore := scores[0]
	for _, v := range scores[1:] {
		if v > maxScore {
			maxScore = v
		}
	}
	sum := 0.0
	for i, v := range scores {
		scores[i] = math.Exp(v - maxScore)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
}
