// Package api is the REST client for the portfolio backend's /api/v1
// surface: portfolio content, chat history replay, and the admin content
// mutations.
package api

// The structs below mirror the backend's JSON. Field tags are the wire
// contract, camelCase like the server serializes.

type Contact struct {
	Email    string `json:"email"`
	Github   string `json:"github"`
	LinkedIn string `json:"linkedin"`
	Address  string `json:"address"`
	Phone    string `json:"phone,omitempty"`
}

type Project struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"imageUrl"`
	Gallery       []string `json:"gallery"`
	SourceCodeURL string   `json:"sourceCodeUrl"`
	Technologies  []string `json:"technologies"`
	Role          string   `json:"role,omitempty"`
}

type Skill struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Proficiency int    `json:"proficiency"`
	Category    string `json:"category"`
}

type WorkExperience struct {
	ID          int    `json:"id"`
	CompanyName string `json:"companyName"`
	Position    string `json:"position"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
}

type Education struct {
	ID          int    `json:"id"`
	School      string `json:"school"`
	Degree      string `json:"degree"`
	Period      string `json:"period"`
	Description string `json:"description"`
}

// Profile is the full portfolio document served by GET /portfolio.
type Profile struct {
	ID          int              `json:"id"`
	FullName    string           `json:"fullName"`
	JobTitle    string           `json:"jobTitle"`
	Bio         string           `json:"bio"`
	AvatarURL   string           `json:"avatarUrl"`
	Strengths   string           `json:"strengths"`
	WorkStyle   string           `json:"workStyle"`
	Contact     Contact          `json:"contact"`
	Projects    []Project        `json:"projects"`
	WorkHistory []WorkExperience `json:"workHistory"`
	Skills      []Skill          `json:"skills"`
	Education   []Education      `json:"education"`
}

// ProfileUpdate is the payload for PUT /admin/profile.
type ProfileUpdate struct {
	FullName  string  `json:"fullName"`
	JobTitle  string  `json:"jobTitle"`
	Bio       string  `json:"bio"`
	AvatarURL string  `json:"avatarUrl,omitempty"`
	Strengths string  `json:"strengths,omitempty"`
	WorkStyle string  `json:"workStyle,omitempty"`
	Contact   Contact `json:"contact"`
}

// ProjectUpdate is the payload for the admin project endpoints. The backend
// takes the tech stack as one comma-joined string here, unlike the array it
// serves back on reads.
type ProjectUpdate struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"imageUrl"`
	Gallery       []string `json:"gallery"`
	SourceCodeURL string   `json:"sourceCodeUrl,omitempty"`
	TechStack     string   `json:"techStack"`
	Role          string   `json:"role"`
}
