package ai

type RecipeRequest struct {
	Instruction string   `json:"instruction" validate:"required,max=2000"`
	Ingredients []string `json:"ingredients,omitempty" validate:"max=200,dive,max=100"`
	Languages   []string `json:"languages,omitempty" validate:"max=5,dive,len=2,alpha"`
}

type Status struct {
	Available bool   `json:"available"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Error     string `json:"error,omitempty"`
}
