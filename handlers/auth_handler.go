package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/capifyhq/capify/middleware"
	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/services"
	"github.com/capifyhq/capify/utils"
)

func Register(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.UserRegister
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		// Check if user already exists
		var existingID int
		err := db.QueryRow("SELECT id FROM users WHERE email = $1", receiver.Email).Scan(&existingID)
		if err == nil {
			utils.WriteErrorResponse(w, http.StatusConflict, errors.New("user already exists"))
			return
		} else if err != sql.ErrNoRows {
			log.Println("Error checking for existing user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(receiver.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("Error hashing password:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		var userID int
		err = db.QueryRow(`
			INSERT INTO users (email, password_hash, first_name, last_name)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, receiver.Email, string(hash), receiver.FirstName, receiver.LastName).Scan(&userID)
		if err != nil {
			log.Println("Error inserting user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error creating user"))
			return
		}

		accessToken, err := utils.CreateAccessToken(userID, receiver.Email)
		if err != nil {
			log.Println("Error creating access token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"msg":   "User created successfully",
			"token": accessToken,
			"user": map[string]interface{}{
				"id":         userID,
				"email":      receiver.Email,
				"first_name": receiver.FirstName,
				"last_name":  receiver.LastName,
			},
		})
	}
}

func Login(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.UserLogin
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		var user models.User
		err := db.QueryRow("SELECT id, email, password_hash FROM users WHERE email = $1", receiver.Email).
			Scan(&user.ID, &user.Email, &user.PasswordHash)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		} else if err != nil {
			log.Println("Error querying user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(receiver.Password)) != nil {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}

		accessToken, err := utils.CreateAccessToken(user.ID, user.Email)
		if err != nil {
			log.Println("Error creating access token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		refreshToken, err := utils.CreateRefreshToken(user.ID)
		if err != nil {
			log.Println("Error creating refresh token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"msg":          "Login successful",
			"token":        accessToken,
			"refreshToken": refreshToken,
			"user": map[string]interface{}{
				"id":    user.ID,
				"email": user.Email,
			},
		})
	}
}

func RefreshToken(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("refreshToken is required"))
			return
		}

		token, err := utils.ValidateToken(body.RefreshToken)
		if err != nil || !token.Valid {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("invalid refresh token"))
			return
		}

		claims := token.Claims.(jwt.MapClaims)
		userID := int(claims["userId"].(float64))

		user, err := services.GetUserByID(db, userID)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("user not found"))
			return
		}

		accessToken, err := utils.CreateAccessToken(user.ID, user.Email)
		if err != nil {
			log.Println("Error creating access token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"token": accessToken})
	}
}

func GetProfile(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("authorization required"))
			return
		}

		user, err := services.GetUserByID(db, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("user not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, user)
	}
}

func UpdateProfile(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(r.Context())
		if !ok {
			utils.WriteErrorResponse(w, http.StatusUnauthorized, errors.New("authorization required"))
			return
		}

		var body struct {
			FirstName *string `json:"first_name"`
			LastName  *string `json:"last_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		user, err := services.GetUserByID(db, userID)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("user not found"))
			return
		}

		if body.FirstName != nil {
			user.FirstName = *body.FirstName
		}
		if body.LastName != nil {
			user.LastName = *body.LastName
		}

		_, err = db.Exec(`UPDATE users SET first_name = $1, last_name = $2, updated_at = NOW() WHERE id = $3`,
			user.FirstName, user.LastName, userID)
		if err != nil {
			log.Println("Error updating user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, user)
	}
}
